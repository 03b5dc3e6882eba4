package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/noah-isme/taskmanager/internal/jobs"
)

// TaskCleaner is the slice of the task service the reaper needs.
type TaskCleaner interface {
	DeleteAllOwnedBy(ctx context.Context, ownerID string) (int64, error)
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// OwnerChecker reports whether a user still exists.
type OwnerChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// ReaperJob removes tasks left behind by deleted users.
type ReaperJob struct {
	Tasks   TaskCleaner
	Owners  OwnerChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReaperJob initialises the reaper handlers.
func NewReaperJob(tasks TaskCleaner, owners OwnerChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReaperJob {
	return &ReaperJob{Tasks: tasks, Owners: owners, Logger: logger, Metrics: metrics}
}

// HandlePurgeOwner deletes the tasks of one owner, provided that owner is
// really gone. A user re-created with the same id keeps their tasks.
func (j *ReaperJob) HandlePurgeOwner(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Tasks == nil || j.Owners == nil {
		return errors.New("purge owner: handler not configured")
	}
	var payload PurgeOwnerPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.OwnerID == "" {
		return fmt.Errorf("purge owner: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskPurgeOwner)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("owner", payload.OwnerID))
	exists, err := j.Owners.Exists(ctx, payload.OwnerID)
	if err != nil {
		logger.Error("check owner", slog.Any("error", err))
		return err
	}
	if exists {
		logger.Warn("owner still exists, skipping purge")
		return nil
	}

	removed, err := j.Tasks.DeleteAllOwnedBy(ctx, payload.OwnerID)
	if err != nil {
		logger.Error("purge owner failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRemovedTasks(TaskPurgeOwner, removed)
	logger.Info("purged owner tasks", slog.Int64("removed", removed))
	return nil
}

// HandleSweepOrphans deletes tasks of every owner that no longer exists.
func (j *ReaperJob) HandleSweepOrphans(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Tasks == nil {
		return errors.New("sweep orphans: handler not configured")
	}
	tracker := j.Metrics.Track(TaskSweepOrphans)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	removed, err := j.Tasks.DeleteOrphaned(ctx)
	if err != nil {
		j.logger().Error("sweep orphans failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRemovedTasks(TaskSweepOrphans, removed)
	j.logger().Info("swept orphaned tasks",
		slog.Int64("removed", removed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReaperJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
