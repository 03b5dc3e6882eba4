package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type pipeContextKey struct{}

// Transactor groups writes issued through the context into one MULTI/EXEC block.
// Reads inside the callback still go straight to the server, so callers read
// first and queue writes after.
type Transactor struct {
	client *redis.Client
}

// NewTransactor constructs a Transactor.
func NewTransactor(client *redis.Client) *Transactor {
	return &Transactor{client: client}
}

// WithinTx runs fn and executes every write queued through Writer atomically.
// Nothing is sent when fn fails.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pipeContextKey{}).(redis.Pipeliner); ok {
		return fn(ctx)
	}
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(context.WithValue(ctx, pipeContextKey{}, pipe))
	})
	if err != nil {
		return fmt.Errorf("platform/cache: exec tx: %w", err)
	}
	return nil
}

// Writer returns the pipeline queued in ctx, or client when none is active.
func Writer(ctx context.Context, client *redis.Client) redis.Cmdable {
	if pipe, ok := ctx.Value(pipeContextKey{}).(redis.Pipeliner); ok {
		return pipe
	}
	return client
}
