package perf

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/noah-isme/taskmanager/internal/jobs"
	"github.com/noah-isme/taskmanager/jobs"
)

func TestOrphanSweepReclaimsEveryDeletedOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var gone []string
	for i := 0; i < 20; i++ {
		id := f.seedOwner(t, 5)
		if i%2 == 0 {
			gone = append(gone, id)
		}
	}
	for _, id := range gone {
		require.NoError(t, f.users.Delete(ctx, id))
	}

	reg := prometheus.NewRegistry()
	reaper := jobs.NewReaperJob(f.tasks, f.users, nil, jobmetrics.NewMetrics(reg))
	require.NoError(t, reaper.HandleSweepOrphans(ctx, jobs.NewSweepOrphansTask()))
	// A second sweep finds nothing left to do.
	require.NoError(t, reaper.HandleSweepOrphans(ctx, jobs.NewSweepOrphansTask()))

	families, err := reg.Gather()
	require.NoError(t, err)
	labels := map[string]string{"job": jobs.TaskSweepOrphans}
	assert.Equal(t, float64(len(gone)*5), metricValue(t, families, "taskmanager_orphan_tasks_removed_total", labels))
	assert.Equal(t, float64(2), metricValue(t, families, "taskmanager_jobs_total", map[string]string{"job": jobs.TaskSweepOrphans, "status": "success"}))
	assert.Equal(t, uint64(2), histogramCount(t, families, "taskmanager_job_duration_seconds", labels))

	for _, id := range gone {
		removed, err := f.tasks.DeleteAllOwnedBy(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, removed)
	}
}

func BenchmarkSweepOrphans(b *testing.B) {
	f := newFixture(b)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		f.seedOwner(b, 4)
	}
	reaper := jobs.NewReaperJob(f.tasks, f.users, nil, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := reaper.HandleSweepOrphans(ctx, jobs.NewSweepOrphansTask()); err != nil {
			b.Fatal(err)
		}
	}
}
