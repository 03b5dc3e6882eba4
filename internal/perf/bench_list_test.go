package perf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taskmanager/internal/tasks"
)

func TestListLatencyTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.seedOwner(t, 200)

	completed := false
	scenarios := []struct {
		name      string
		query     tasks.ListQuery
		threshold time.Duration
	}{
		{name: "default order", query: tasks.ListQuery{}, threshold: 250 * time.Millisecond},
		{name: "sorted page", query: tasks.ListQuery{SortField: "description", SortDesc: true, Limit: 20, Skip: 40}, threshold: 250 * time.Millisecond},
		{name: "filtered", query: tasks.ListQuery{Completed: &completed, Limit: 50}, threshold: 250 * time.Millisecond},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 20)
		for i := 0; i < 20; i++ {
			start := time.Now()
			_, err := f.tasks.List(ctx, owner, scenario.query)
			require.NoError(t, err)
			samples = append(samples, time.Since(start))
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkListSortedPage(b *testing.B) {
	f := newFixture(b)
	ctx := context.Background()
	owner := f.seedOwner(b, 200)
	q := tasks.ListQuery{SortField: "description", Limit: 25, Skip: 50}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.tasks.List(ctx, owner, q); err != nil {
			b.Fatal(err)
		}
	}
}
