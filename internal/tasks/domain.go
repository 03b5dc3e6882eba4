package tasks

import "time"

// Task is a to-do item owned by exactly one user.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	OwnerID     string    `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateInput carries the client supplied fields of a new task. Any owner
// sent by the client is ignored.
type CreateInput struct {
	Description string `json:"description"`
	Completed   *bool  `json:"completed"`
}
