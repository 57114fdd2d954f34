package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionsReconcile re-reads every grant and reports drift.
	TaskPermissionsReconcile = "permissions:reconcile"

	reconcileMaxRetry = 3
)

// PermissionsReconcilePayload tunes a reconcile run.
type PermissionsReconcilePayload struct {
	// Broadcast asks every dashboard instance to re-fetch after the run.
	Broadcast bool `json:"broadcast"`
}

// NewPermissionsReconcileTask constructs the reconcile task.
func NewPermissionsReconcileTask(broadcast bool) (*asynq.Task, error) {
	data, err := json.Marshal(PermissionsReconcilePayload{Broadcast: broadcast})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsReconcile, data), nil
}
