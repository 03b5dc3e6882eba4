package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPurgeOwner removes the remaining tasks of one deleted user.
	TaskPurgeOwner = "tasks:purge_owner"
	// TaskSweepOrphans removes tasks of every user that no longer exists.
	TaskSweepOrphans = "tasks:sweep_orphans"
)

// PurgeOwnerPayload identifies the deleted user whose tasks are purged.
type PurgeOwnerPayload struct {
	OwnerID string `json:"owner_id"`
}

// NewPurgeOwnerTask constructs a purge task for ownerID.
func NewPurgeOwnerTask(ownerID string) (*asynq.Task, error) {
	if ownerID == "" {
		return nil, errors.New("jobs: purge owner requires an owner id")
	}
	data, err := json.Marshal(PurgeOwnerPayload{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeOwner, data, asynq.MaxRetry(3)), nil
}

// NewSweepOrphansTask constructs the periodic orphan sweep task.
func NewSweepOrphansTask() *asynq.Task {
	return asynq.NewTask(TaskSweepOrphans, nil, asynq.MaxRetry(3))
}
