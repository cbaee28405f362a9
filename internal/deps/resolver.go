// Package deps decides whether a task may be dispatched now, by scanning its
// team for incomplete tasks that declare a "blocks" relation targeting it.
package deps

import (
	"context"
	"log"
	"sort"

	"github.com/arihanv/relay/internal/tracker"
)

// Blocker summarizes one task currently blocking another.
type Blocker struct {
	// ID is the tracker-internal identifier of the blocking task.
	ID string `json:"id"`
	// Identifier is the human-facing key of the blocking task.
	Identifier string `json:"identifier"`
	// Title is the blocking task's title.
	Title string `json:"title"`
	// State is the blocking task's current workflow state name.
	State string `json:"state"`
}

// Status is the computed dependency state of one task. It is never
// persisted; it is recomputed on demand.
type Status struct {
	// Blocked is true if at least one incomplete blocker was found, or the
	// dependency state could not be determined because of a backend error.
	Blocked bool `json:"blocked"`
	// Blockers lists the incomplete blocking tasks, ordered by identifier.
	Blockers []Blocker `json:"blockers,omitempty"`
	// ReadyToDispatch is true iff no incomplete blockers remain.
	ReadyToDispatch bool `json:"ready_to_dispatch"`
}

// Resolver resolves task dependencies against the issue tracker. All backend
// calls go through the gateway-routed client it holds.
type Resolver struct {
	client tracker.Client
}

// New creates a Resolver using the given tracker client.
func New(client tracker.Client) *Resolver {
	return &Resolver{client: client}
}

// IsBlocked reports whether the task has incomplete blockers. Backend errors
// resolve to blocked; a task without a team resolves to unblocked.
func (r *Resolver) IsBlocked(ctx context.Context, taskID string) bool {
	return r.CheckDependencies(ctx, taskID).Blocked
}

// CheckDependencies scans the task's team siblings for outgoing "blocks"
// relations targeting the task and collects the incomplete ones.
//
// The relation is only queryable from the blocking side, so the scan walks
// every sibling's outgoing relations rather than the task's own relation
// list.
//
// Failure policy is deliberately asymmetric: a task whose team cannot be
// determined has nothing that can block it and resolves unblocked, but a
// transport or API failure resolves blocked until the state can be proven.
func (r *Resolver) CheckDependencies(ctx context.Context, taskID string) Status {
	task, err := r.client.GetIssue(ctx, taskID)
	if err != nil {
		log.Printf("[deps] fetch %s failed, assuming blocked: %v", taskID, err)
		return Status{Blocked: true}
	}

	if task.Team == nil || task.Team.ID == "" {
		log.Printf("[deps] %s has no team, treating as unblocked", task.Identifier)
		return Status{ReadyToDispatch: true}
	}

	siblings, err := r.client.ListTeamIssues(ctx, task.Team.ID)
	if err != nil {
		log.Printf("[deps] team scan for %s failed, assuming blocked: %v", task.Identifier, err)
		return Status{Blocked: true}
	}

	var blockers []Blocker
	for _, sibling := range siblings {
		if sibling.ID == task.ID {
			continue
		}
		if !blocksTarget(sibling, task) {
			continue
		}
		if sibling.State != nil && tracker.DoneStateType(sibling.State.Type) {
			continue
		}
		state := ""
		if sibling.State != nil {
			state = sibling.State.Name
		}
		blockers = append(blockers, Blocker{
			ID:         sibling.ID,
			Identifier: sibling.Identifier,
			Title:      sibling.Title,
			State:      state,
		})
	}

	sort.Slice(blockers, func(i, j int) bool {
		return blockers[i].Identifier < blockers[j].Identifier
	})

	return Status{
		Blocked:         len(blockers) > 0,
		Blockers:        blockers,
		ReadyToDispatch: len(blockers) == 0,
	}
}

// blocksTarget reports whether sibling declares a "blocks" relation whose
// target is the task.
func blocksTarget(sibling tracker.Issue, task *tracker.Issue) bool {
	for _, rel := range sibling.Relations {
		if rel.Type != tracker.RelationBlocks || rel.RelatedIssue == nil {
			continue
		}
		if rel.RelatedIssue.ID == task.ID || rel.RelatedIssue.Identifier == task.Identifier {
			return true
		}
	}
	return false
}
