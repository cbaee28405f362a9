package models

import "time"

// SlotState represents the occupancy state of a worker slot.
type SlotState string

const (
	// SlotIdle indicates the slot has no task assigned.
	SlotIdle SlotState = "idle"
	// SlotBusy indicates the slot is serving a task.
	SlotBusy SlotState = "busy"
	// SlotUnreachable indicates the slot's execution context could not be reached.
	SlotUnreachable SlotState = "unreachable"
)

// Valid returns true if the state is a known value.
func (s SlotState) Valid() bool {
	switch s {
	case SlotIdle, SlotBusy, SlotUnreachable:
		return true
	default:
		return false
	}
}

// WorkerSlot is one of a fixed number of reusable named execution contexts.
// Slots are created at pool initialization and never destroyed.
type WorkerSlot struct {
	// Number is the slot number in [1, N].
	Number int `json:"number"`
	// State is the current occupancy state.
	State SlotState `json:"state"`
	// TaskID is the identifier of the task the slot is serving, if any.
	TaskID string `json:"task_id,omitempty"`
	// LastActivity is when the slot last changed state.
	LastActivity time.Time `json:"last_activity"`
}

// BusySlot describes an assigned slot as reported by the pool.
type BusySlot struct {
	// Number is the slot number.
	Number int `json:"number"`
	// TaskID is the task the slot is serving.
	TaskID string `json:"task_id"`
	// Busy is how long the slot has been serving the task.
	Busy time.Duration `json:"busy"`
}
