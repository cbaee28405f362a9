package orchestrator

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/arihanv/relay/internal/prompt"
	"github.com/arihanv/relay/internal/tracker"
	"github.com/arihanv/relay/pkg/models"
)

// captureFailureLimit is how many consecutive capture errors a monitor
// tolerates before declaring the session dead.
const captureFailureLimit = 3

// monitor polls a worker session's output until the completion marker
// appears, the session becomes uncapturable, or the monitor is canceled.
// It runs as one goroutine per dispatched task.
func (o *Orchestrator) monitor(ctx context.Context, taskID, identifier string, slot int, platform models.Platform) {
	backend := o.dispatcher.BackendFor(platform)
	marker := prompt.CompletionMarker(identifier)
	ticker := time.NewTicker(o.cfg.MonitorInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		out, err := backend.Capture(ctx, slot)
		if err != nil {
			failures++
			log.Printf("[monitor] worker %d capture failed (%d/%d): %v", slot, failures, captureFailureLimit, err)
			if failures >= captureFailureLimit {
				o.HandleTerminal(ctx, TerminalEvent{TaskID: taskID, Success: false})
				return
			}
			continue
		}
		failures = 0

		if strings.Contains(out, marker) {
			log.Printf("[monitor] worker %d reported completion of %s", slot, identifier)
			if err := backend.Terminate(ctx, slot); err != nil {
				log.Printf("[monitor] terminate worker %d: %v", slot, err)
			}
			o.markDone(ctx, taskID)
			o.HandleTerminal(ctx, TerminalEvent{TaskID: taskID, Success: true})
			return
		}
	}
}

// markDone moves the tracked issue into its team's done state. Best effort;
// the terminal transition proceeds regardless.
func (o *Orchestrator) markDone(ctx context.Context, taskID string) {
	issue, err := o.tracker.GetIssue(ctx, taskID)
	if err != nil || issue.Team == nil {
		return
	}
	states, err := o.tracker.GetTeamStates(ctx, issue.Team.ID)
	if err != nil {
		return
	}
	for _, s := range states {
		if s.Type == tracker.StateTypeCompleted {
			if err := o.tracker.UpdateIssueState(ctx, taskID, s.ID); err != nil {
				log.Printf("[monitor] mark %s done: %v", taskID, err)
			}
			return
		}
	}
}
