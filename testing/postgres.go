package testing

import (
	"context"
	"os"
	stdtesting "testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/taskmanager/internal/platform/db"
)

// PostgresDSNEnv names the variable that opts tests into a real PostgreSQL.
const PostgresDSNEnv = "TEST_PG_DSN"

// Postgres returns a migrated pool for TEST_PG_DSN, or skips the test when the
// variable is unset.
func Postgres(t stdtesting.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	if err := db.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}
