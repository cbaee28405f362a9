// Package pool manages exclusive allocation of a bounded set of worker
// slots to tasks.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arihanv/relay/pkg/models"
)

// DefaultSize is the number of worker slots when none is configured.
const DefaultSize = 4

// ErrSlotBusy indicates an attempt to reserve a slot already serving a
// different task. This is a caller bug and is never masked.
var ErrSlotBusy = errors.New("slot already reserved for another task")

// ErrNoSlot indicates every slot is serving a task.
var ErrNoSlot = errors.New("all worker slots busy")

// Pool is a fixed-size registry of numbered worker slots. Slots are created
// once and reused; acquisition rotates round-robin over [1, N] so work
// spreads evenly across execution contexts.
type Pool struct {
	mu     sync.Mutex
	slots  []*models.WorkerSlot
	cursor int
}

// New creates a pool with size slots, all idle. A non-positive size falls
// back to DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	slots := make([]*models.WorkerSlot, size)
	for i := range slots {
		slots[i] = &models.WorkerSlot{
			Number:       i + 1,
			State:        models.SlotIdle,
			LastActivity: time.Now(),
		}
	}
	return &Pool{slots: slots}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Acquire selects the next slot number round-robin, wrapping after N. The
// returned slot is not guaranteed to be idle; the dispatcher resets the
// underlying execution context before reuse.
func (p *Pool) Acquire() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked()
}

func (p *Pool) acquireLocked() int {
	p.cursor = p.cursor%len(p.slots) + 1
	return p.cursor
}

// AcquireFor atomically acquires a slot and reserves it for taskID. The
// round-robin choice is kept unless the chosen slot is busy with a different
// task, in which case the rotation advances until a reservable slot is
// found. Returns ErrNoSlot when every slot is taken.
func (p *Pool) AcquireFor(taskID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.slots); i++ {
		n := p.acquireLocked()
		if err := p.reserveLocked(n, taskID); err == nil {
			return n, nil
		}
	}
	return 0, ErrNoSlot
}

// Reserve records the slot-to-task assignment. Reserving a busy slot for the
// task it already serves is a no-op; reserving it for a different task
// returns ErrSlotBusy.
func (p *Pool) Reserve(slot int, taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveLocked(slot, taskID)
}

func (p *Pool) reserveLocked(slot int, taskID string) error {
	s, err := p.slotLocked(slot)
	if err != nil {
		return err
	}
	if s.State != models.SlotIdle {
		if s.TaskID == taskID {
			return nil
		}
		return fmt.Errorf("%w: slot %d serves %s, refusing %s", ErrSlotBusy, slot, s.TaskID, taskID)
	}
	s.State = models.SlotBusy
	s.TaskID = taskID
	s.LastActivity = time.Now()
	return nil
}

// Release clears the slot's assignment. Releasing an idle slot is a no-op.
func (p *Pool) Release(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.slotLocked(slot)
	if err != nil || s.State == models.SlotIdle {
		return
	}
	s.State = models.SlotIdle
	s.TaskID = ""
	s.LastActivity = time.Now()
}

// MarkUnreachable flags a busy slot whose execution context could not be
// reached. The assignment is kept; Release still reclaims the slot.
func (p *Pool) MarkUnreachable(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.slotLocked(slot)
	if err != nil || s.State != models.SlotBusy {
		return
	}
	s.State = models.SlotUnreachable
	s.LastActivity = time.Now()
}

// TaskFor returns the task ID a slot is serving, or "" when idle.
func (p *Pool) TaskFor(slot int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.slotLocked(slot)
	if err != nil {
		return ""
	}
	return s.TaskID
}

// ListBusy returns all assigned slots with their task and elapsed busy
// duration, ordered by slot number.
func (p *Pool) ListBusy() []models.BusySlot {
	p.mu.Lock()
	defer p.mu.Unlock()

	var busy []models.BusySlot
	for _, s := range p.slots {
		if s.State == models.SlotIdle {
			continue
		}
		busy = append(busy, models.BusySlot{
			Number: s.Number,
			TaskID: s.TaskID,
			Busy:   time.Since(s.LastActivity),
		})
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Number < busy[j].Number })
	return busy
}

func (p *Pool) slotLocked(slot int) (*models.WorkerSlot, error) {
	if slot < 1 || slot > len(p.slots) {
		return nil, fmt.Errorf("slot %d out of range [1, %d]", slot, len(p.slots))
	}
	return p.slots[slot-1], nil
}
