package models

import "time"

// TaskStage represents the lifecycle stage of a tracked task.
type TaskStage string

const (
	// TaskStageUnknown indicates the stage has not been determined yet.
	TaskStageUnknown TaskStage = "unknown"
	// TaskStageReady indicates the task has no incomplete blockers.
	TaskStageReady TaskStage = "ready"
	// TaskStageBlocked indicates the task is waiting on incomplete blockers.
	TaskStageBlocked TaskStage = "blocked"
	// TaskStageDispatched indicates the task is running in a worker session.
	TaskStageDispatched TaskStage = "dispatched"
	// TaskStageCompleted indicates the task finished successfully.
	TaskStageCompleted TaskStage = "completed"
	// TaskStageFailed indicates the task failed.
	TaskStageFailed TaskStage = "failed"
)

// Valid returns true if the stage is a known value.
func (s TaskStage) Valid() bool {
	switch s {
	case TaskStageUnknown, TaskStageReady, TaskStageBlocked,
		TaskStageDispatched, TaskStageCompleted, TaskStageFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the stage is a terminal state.
func (s TaskStage) Terminal() bool {
	return s == TaskStageCompleted || s == TaskStageFailed
}

// Task represents a unit of externally tracked work.
type Task struct {
	// ID is the tracker-internal identifier for this task.
	ID string `json:"id"`
	// Identifier is the human-facing key (e.g. "ENG-142").
	Identifier string `json:"identifier"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// TeamID is the identifier of the grouping the task belongs to.
	TeamID string `json:"team_id,omitempty"`
	// Stage is the current lifecycle stage of the task.
	Stage TaskStage `json:"stage"`
	// UpdatedAt is when the task last changed stage locally.
	UpdatedAt time.Time `json:"updated_at"`
}
