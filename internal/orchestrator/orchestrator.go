// Package orchestrator ties the coordinator together: it reacts to task
// assignment and terminal events, consults the dependency resolver, holds
// the blocked-task backlog, and drives the worker pool and platform
// dispatcher.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arihanv/relay/internal/deps"
	"github.com/arihanv/relay/internal/dispatch"
	"github.com/arihanv/relay/internal/gateway"
	"github.com/arihanv/relay/internal/pool"
	"github.com/arihanv/relay/internal/prompt"
	"github.com/arihanv/relay/internal/tracker"
	"github.com/arihanv/relay/pkg/models"
)

// AssignmentEvent signals that a task was assigned to the coordinator's
// target user. It originates outside the core (webhook or backlog rescan).
type AssignmentEvent struct {
	// TaskID is the tracker identifier used for API calls.
	TaskID string `json:"task_id"`
	// Identifier is the human-facing key (e.g. "ENG-142").
	Identifier string `json:"identifier"`
	// TeamID is the task's grouping, used for dependency scans.
	TeamID string `json:"team_id"`
}

// TerminalEvent signals that a dispatched task reached a terminal state.
type TerminalEvent struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
}

// Recorder persists dispatch attempts and outcomes for later inspection.
// It is observability only; the orchestrator never reads it back.
type Recorder interface {
	RecordDispatch(taskID, identifier string, res models.DispatchResult)
	RecordTerminal(taskID string, success bool)
}

// Config contains tuning options for the Orchestrator.
type Config struct {
	// Mode selects the platform policy for dispatches.
	Mode dispatch.Mode
	// MonitorInterval is the polling interval of per-slot session monitors.
	MonitorInterval time.Duration
	// BranchPrefix prefixes worker feature branches.
	BranchPrefix string
}

func (c *Config) applyDefaults() {
	if !c.Mode.Valid() {
		c.Mode = dispatch.ModeAuto
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 30 * time.Second
	}
}

// activeTask tracks one dispatched (or currently dispatching) task.
type activeTask struct {
	slot       int
	identifier string
	platform   models.Platform
	startedAt  time.Time
	cancel     context.CancelFunc
}

// Orchestrator is the top-level dispatch policy. All mutable coordination
// state (backlog, active set) lives on this single long-lived instance.
type Orchestrator struct {
	cfg        Config
	tracker    tracker.Client
	resolver   *deps.Resolver
	pool       *pool.Pool
	dispatcher *dispatch.Dispatcher
	queue      *gateway.Queue
	recorder   Recorder

	mu      sync.Mutex
	backlog map[string]AssignmentEvent
	active  map[string]*activeTask
	tasks   map[string]*models.Task
}

// New creates an Orchestrator. recorder may be nil.
func New(cfg Config, tc tracker.Client, resolver *deps.Resolver, p *pool.Pool,
	d *dispatch.Dispatcher, q *gateway.Queue, recorder Recorder) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:        cfg,
		tracker:    tc,
		resolver:   resolver,
		pool:       p,
		dispatcher: d,
		queue:      q,
		recorder:   recorder,
		backlog:    make(map[string]AssignmentEvent),
		active:     make(map[string]*activeTask),
		tasks:      make(map[string]*models.Task),
	}
}

// HandleAssignment processes a "task assigned" event. Re-delivery of a task
// that already has an active worker is a no-op. A blocked task lands in the
// backlog; a ready task is dispatched into a worker slot.
func (o *Orchestrator) HandleAssignment(ctx context.Context, ev AssignmentEvent) error {
	o.mu.Lock()
	if _, busy := o.active[ev.TaskID]; busy {
		o.mu.Unlock()
		log.Printf("[orchestrator] %s already has an active worker, ignoring re-delivery", ev.Identifier)
		return nil
	}
	// Claim the task before any blocking call so a concurrent re-delivery
	// cannot dispatch it twice. A backlogged task being re-delivered is
	// re-evaluated from scratch.
	delete(o.backlog, ev.TaskID)
	o.active[ev.TaskID] = &activeTask{identifier: ev.Identifier, startedAt: time.Now()}
	o.setStageLocked(ev, models.TaskStageUnknown)
	o.mu.Unlock()

	status := o.resolver.CheckDependencies(ctx, ev.TaskID)
	if !status.ReadyToDispatch {
		o.mu.Lock()
		delete(o.active, ev.TaskID)
		o.backlog[ev.TaskID] = ev
		o.setStageLocked(ev, models.TaskStageBlocked)
		o.mu.Unlock()
		o.notify(ctx, ev.TaskID, blockedMessage(status))
		log.Printf("[orchestrator] %s blocked by %d tasks, queued", ev.Identifier, len(status.Blockers))
		return nil
	}

	if err := o.dispatchReady(ctx, ev); err != nil {
		o.unclaim(ev.TaskID)
		return err
	}
	return nil
}

// dispatchReady acquires and reserves a slot, then hands the task off. The
// caller has already claimed the task in the active set.
func (o *Orchestrator) dispatchReady(ctx context.Context, ev AssignmentEvent) error {
	issue, err := o.tracker.GetIssue(ctx, ev.TaskID)
	if err != nil {
		o.notify(ctx, ev.TaskID, fmt.Sprintf("Dispatch aborted: could not fetch task: %v", err))
		return fmt.Errorf("fetch %s: %w", ev.TaskID, err)
	}

	o.mu.Lock()
	o.setStageLocked(ev, models.TaskStageReady)
	if t := o.tasks[ev.TaskID]; t != nil {
		t.Title = issue.Title
		t.Description = issue.Description
	}
	o.mu.Unlock()

	slot, err := o.pool.AcquireFor(ev.TaskID)
	if err != nil {
		o.notify(ctx, ev.TaskID, fmt.Sprintf("Dispatch aborted: %v", err))
		return fmt.Errorf("acquire slot for %s: %w", ev.TaskID, err)
	}

	payload := prompt.Build(prompt.Params{
		Identifier:   issue.Identifier,
		Title:        issue.Title,
		Description:  issue.Description,
		BranchPrefix: o.cfg.BranchPrefix,
	})

	res := o.dispatcher.Dispatch(ctx, slot, payload, ev.TaskID, o.cfg.Mode)
	if o.recorder != nil {
		o.recorder.RecordDispatch(ev.TaskID, issue.Identifier, res)
	}
	if !res.Success {
		// The dispatcher already posted the failure notification.
		o.pool.Release(slot)
		o.dropTask(ev.TaskID)
		return fmt.Errorf("dispatch %s: %s", issue.Identifier, res.Error)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.setStageLocked(ev, models.TaskStageDispatched)
	o.active[ev.TaskID] = &activeTask{
		slot:       slot,
		identifier: issue.Identifier,
		platform:   res.Platform,
		startedAt:  time.Now(),
		cancel:     cancel,
	}
	o.mu.Unlock()

	go o.monitor(monitorCtx, ev.TaskID, issue.Identifier, slot, res.Platform)
	log.Printf("[orchestrator] %s dispatched to worker %d (%s)", issue.Identifier, slot, res.Platform)
	return nil
}

// HandleTerminal processes a task's terminal signal: the slot is released
// and its monitor canceled, then the whole backlog is rescanned and any task
// no longer blocked goes back through the assignment path. The full rescan
// is deliberate; blocking graphs stay small enough that it beats maintaining
// an incremental dependency graph.
func (o *Orchestrator) HandleTerminal(ctx context.Context, ev TerminalEvent) {
	// The terminal event usually arrives from the task's own monitor, whose
	// context is canceled just below. Detach so the notification and the
	// rescan's tracker calls outlive that cancellation.
	ctx = context.WithoutCancel(ctx)

	o.mu.Lock()
	a, ok := o.active[ev.TaskID]
	delete(o.active, ev.TaskID)
	delete(o.tasks, ev.TaskID)
	o.mu.Unlock()

	if ok {
		if a.cancel != nil {
			a.cancel()
		}
		o.pool.Release(a.slot)
		if o.recorder != nil {
			o.recorder.RecordTerminal(ev.TaskID, ev.Success)
		}
		if ev.Success {
			log.Printf("[orchestrator] %s completed on worker %d", a.identifier, a.slot)
		} else {
			log.Printf("[orchestrator] %s failed on worker %d", a.identifier, a.slot)
			o.notify(ctx, ev.TaskID, "Worker session ended without completing the task.")
		}
	}

	o.rescanBacklog(ctx)
}

// rescanBacklog recomputes blockage for every backlogged task and routes the
// newly unblocked ones back through the assignment path.
func (o *Orchestrator) rescanBacklog(ctx context.Context) {
	o.mu.Lock()
	snapshot := make([]AssignmentEvent, 0, len(o.backlog))
	for _, ev := range o.backlog {
		snapshot = append(snapshot, ev)
	}
	o.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Identifier < snapshot[j].Identifier })
	log.Printf("[orchestrator] rescanning %d backlogged tasks", len(snapshot))

	for _, ev := range snapshot {
		if o.resolver.IsBlocked(ctx, ev.TaskID) {
			continue
		}
		if err := o.HandleAssignment(ctx, ev); err != nil {
			log.Printf("[orchestrator] redispatch %s: %v", ev.Identifier, err)
		}
	}
}

// StopTask tears down a task's worker session. Slot release and monitor
// cancellation are guaranteed even when session teardown fails.
func (o *Orchestrator) StopTask(ctx context.Context, taskID string) error {
	o.mu.Lock()
	a, ok := o.active[taskID]
	delete(o.active, taskID)
	delete(o.tasks, taskID)
	if !ok {
		if _, queued := o.backlog[taskID]; queued {
			delete(o.backlog, taskID)
			o.mu.Unlock()
			log.Printf("[orchestrator] %s removed from backlog", taskID)
			return nil
		}
		o.mu.Unlock()
		return fmt.Errorf("no active session for %s", taskID)
	}
	o.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	if a.slot > 0 {
		if err := o.dispatcher.BackendFor(a.platform).Terminate(ctx, a.slot); err != nil {
			log.Printf("[orchestrator] terminate worker %d: %v", a.slot, err)
		}
		o.pool.Release(a.slot)
	}
	o.notify(ctx, taskID, "Worker session stopped by operator.")
	return nil
}

// unclaim removes a task from the active set after a failed dispatch.
func (o *Orchestrator) unclaim(taskID string) {
	o.mu.Lock()
	delete(o.active, taskID)
	delete(o.tasks, taskID)
	o.mu.Unlock()
}

// dropTask removes a terminal task from active tracking. Terminal tasks are
// never kept; their history lives in the audit log and the tracker.
func (o *Orchestrator) dropTask(taskID string) {
	o.mu.Lock()
	delete(o.tasks, taskID)
	o.mu.Unlock()
}

// setStageLocked records a task's lifecycle stage. Callers must hold o.mu.
func (o *Orchestrator) setStageLocked(ev AssignmentEvent, stage models.TaskStage) {
	t, ok := o.tasks[ev.TaskID]
	if !ok {
		t = &models.Task{ID: ev.TaskID, Identifier: ev.Identifier, TeamID: ev.TeamID}
		o.tasks[ev.TaskID] = t
	}
	t.Stage = stage
	t.UpdatedAt = time.Now()
}

// notify posts a status comment on the task through the gateway-routed
// client. Progress-blocking conditions must never fail silently, so
// notification errors are logged with the message they carried.
func (o *Orchestrator) notify(ctx context.Context, taskID, message string) {
	if err := o.tracker.CreateComment(ctx, taskID, message); err != nil {
		log.Printf("[orchestrator] notify %s failed: %v (message was: %s)", taskID, err, message)
	}
}

// blockedMessage renders the blocked-status notification for a task.
func blockedMessage(status deps.Status) string {
	var b strings.Builder
	b.WriteString("Task is blocked by incomplete dependencies:\n")
	for _, blocker := range status.Blockers {
		fmt.Fprintf(&b, "- %s %s (%s)\n", blocker.Identifier, blocker.Title, blocker.State)
	}
	b.WriteString("It will be dispatched automatically once they complete.")
	return b.String()
}
