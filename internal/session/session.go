// Package session manages worker execution contexts on the available
// platforms. Each worker slot maps to a named tmux session, either on the
// local machine or on a remote host reachable over SSH.
package session

import (
	"context"
	"fmt"

	"github.com/arihanv/relay/pkg/models"
)

// Backend manages worker sessions on one execution platform.
type Backend interface {
	// Platform identifies which platform this backend drives.
	Platform() models.Platform

	// CreateOrReset tears down any prior session for the slot and
	// establishes a fresh one with an isolated working area keyed by the
	// task identifier.
	CreateOrReset(ctx context.Context, slot int, taskID string) error

	// Deliver hands the payload to the slot's session for execution.
	Deliver(ctx context.Context, slot int, payload string) error

	// ListSessions returns the names of live worker sessions.
	ListSessions(ctx context.Context) ([]string, error)

	// Capture returns the current output of the slot's session.
	Capture(ctx context.Context, slot int) (string, error)

	// Terminate kills the slot's session. Terminating a session that does
	// not exist is not an error.
	Terminate(ctx context.Context, slot int) error

	// Probe reports whether the platform is currently reachable. It must
	// respect the context deadline.
	Probe(ctx context.Context) bool
}

// Name returns the session name for a worker slot. Session names are stable
// so a slot's session can be found and reset across dispatches.
func Name(slot int) string {
	return fmt.Sprintf("relay-worker-%d", slot)
}
