package perf

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taskmanager/internal/tasks"
	"github.com/noah-isme/taskmanager/internal/users"
)

type fixture struct {
	users *users.RedisRepository
	tasks *tasks.Service
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	userRepo := users.NewRedisRepository(client)
	return &fixture{
		users: userRepo,
		tasks: tasks.NewService(tasks.NewRedisRepository(client, userRepo)),
	}
}

// seedOwner stores a user with n tasks and returns the user id.
func (f *fixture) seedOwner(t testing.TB, n int) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, f.users.Create(ctx, &users.User{
		ID:           id,
		Name:         "owner",
		Email:        id + "@example.com",
		PasswordHash: "x",
		Tokens:       []string{},
	}))
	for i := 0; i < n; i++ {
		_, err := f.tasks.Create(ctx, id, tasks.CreateInput{Description: fmt.Sprintf("task %03d", i)})
		require.NoError(t, err)
	}
	return id
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramCount(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) uint64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetHistogram().GetSampleCount()
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}
