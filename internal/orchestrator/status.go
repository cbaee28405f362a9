package orchestrator

import (
	"sort"
	"time"

	"github.com/arihanv/relay/internal/gateway"
	"github.com/arihanv/relay/pkg/models"
)

// ActiveSession describes one running worker session.
type ActiveSession struct {
	TaskID     string          `json:"task_id"`
	Identifier string          `json:"identifier"`
	Worker     int             `json:"worker"`
	Platform   models.Platform `json:"platform"`
	StartedAt  time.Time       `json:"started_at"`
}

// Status is a point-in-time snapshot of the coordinator.
type Status struct {
	Active   []ActiveSession   `json:"active"`
	Backlog  []AssignmentEvent `json:"backlog"`
	Tasks    []models.Task     `json:"tasks"`
	Busy     []models.BusySlot `json:"busy_slots"`
	Gateway  gateway.Stats     `json:"gateway"`
	PoolSize int               `json:"pool_size"`
}

// Status reports the coordinator's current state for the operator surface.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	active := make([]ActiveSession, 0, len(o.active))
	for id, a := range o.active {
		active = append(active, ActiveSession{
			TaskID:     id,
			Identifier: a.identifier,
			Worker:     a.slot,
			Platform:   a.platform,
			StartedAt:  a.startedAt,
		})
	}
	backlog := make([]AssignmentEvent, 0, len(o.backlog))
	for _, ev := range o.backlog {
		backlog = append(backlog, ev)
	}
	tasks := make([]models.Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		tasks = append(tasks, *t)
	}
	o.mu.Unlock()

	sort.Slice(active, func(i, j int) bool { return active[i].Worker < active[j].Worker })
	sort.Slice(backlog, func(i, j int) bool { return backlog[i].Identifier < backlog[j].Identifier })
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Identifier < tasks[j].Identifier })

	st := Status{
		Active:   active,
		Backlog:  backlog,
		Tasks:    tasks,
		Busy:     o.pool.ListBusy(),
		PoolSize: o.pool.Size(),
	}
	if o.queue != nil {
		st.Gateway = o.queue.Stats()
	}
	return st
}

// Sessions lists the currently active worker sessions.
func (o *Orchestrator) Sessions() []ActiveSession {
	return o.Status().Active
}
