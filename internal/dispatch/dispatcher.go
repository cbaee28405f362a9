// Package dispatch delivers a task's instructions to a worker slot's
// execution context, abstracting over the local and remote platforms and
// failing over between them.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/arihanv/relay/internal/session"
	"github.com/arihanv/relay/internal/tracker"
	"github.com/arihanv/relay/pkg/models"
)

// Mode selects how the dispatcher picks an execution platform.
type Mode string

const (
	// ModeLocal forces the local platform.
	ModeLocal Mode = "local"
	// ModeRemote forces the remote platform.
	ModeRemote Mode = "remote"
	// ModeAuto probes platform availability and fails over on error.
	ModeAuto Mode = "auto"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	return m == ModeLocal || m == ModeRemote || m == ModeAuto
}

// Config contains tuning options for the Dispatcher.
type Config struct {
	// MaxAttempts is the number of platform handoff attempts per dispatch.
	MaxAttempts int
	// ProbeTimeout bounds each platform liveness probe.
	ProbeTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 4 * time.Second
	}
}

// Dispatcher hands tasks off to worker sessions. Each dispatch call walks a
// small state machine: Selecting, then Attempting on a platform, ending in
// Success or, after exhausting attempts (failing over between platforms in
// auto mode), ExhaustedFailure.
type Dispatcher struct {
	cfg     Config
	local   session.Backend
	remote  session.Backend
	tracker tracker.Client
}

// New creates a Dispatcher over the two platform backends. Notifications are
// posted through the gateway-routed tracker client.
func New(cfg Config, local, remote session.Backend, tc tracker.Client) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{cfg: cfg, local: local, remote: remote, tracker: tc}
}

// BackendFor returns the backend driving the given platform.
func (d *Dispatcher) BackendFor(platform models.Platform) session.Backend {
	if platform == models.PlatformRemote {
		return d.remote
	}
	return d.local
}

// Dispatch delivers payload into the slot's session for taskID. In auto
// mode a failed attempt flips to the other platform for the next one; a
// forced mode retries the same platform. Notifications are emitted on
// start, on each failover, and on the terminal outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, slot int, payload, taskID string, mode Mode) models.DispatchResult {
	platform := d.selectPlatform(ctx, mode)
	d.notify(ctx, taskID, fmt.Sprintf("Dispatching to worker %d on %s platform.", slot, platform))

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.attempt(ctx, platform, slot, payload, taskID)
		if err == nil {
			d.notify(ctx, taskID, fmt.Sprintf("Dispatched to worker %d on %s platform.", slot, platform))
			return models.DispatchResult{Success: true, Platform: platform, Worker: slot}
		}
		lastErr = err
		log.Printf("[dispatch] %s attempt %d/%d on %s failed: %v",
			taskID, attempt, d.cfg.MaxAttempts, platform, err)

		if attempt == d.cfg.MaxAttempts {
			break
		}
		if mode == ModeAuto && d.BackendFor(platform.Other()) != nil {
			// Never retry the same platform twice when an alternate exists.
			platform = platform.Other()
			d.notify(ctx, taskID, fmt.Sprintf("Worker %d handoff failed, failing over to %s platform.", slot, platform))
		} else {
			d.notify(ctx, taskID, fmt.Sprintf("Worker %d handoff failed, retrying on %s platform.", slot, platform))
		}
	}

	d.notify(ctx, taskID, fmt.Sprintf("Dispatch to worker %d failed after %d attempts: %v", slot, d.cfg.MaxAttempts, lastErr))
	return models.DispatchResult{
		Success:  false,
		Platform: platform,
		Worker:   slot,
		Error:    lastErr.Error(),
	}
}

// attempt performs one platform handoff: reset the slot's session, establish
// the task's working area, deliver the payload.
func (d *Dispatcher) attempt(ctx context.Context, platform models.Platform, slot int, payload, taskID string) error {
	backend := d.BackendFor(platform)
	if backend == nil {
		return fmt.Errorf("no %s backend configured", platform)
	}
	if err := backend.CreateOrReset(ctx, slot, taskID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	if err := backend.Deliver(ctx, slot, payload); err != nil {
		return fmt.Errorf("deliver payload: %w", err)
	}
	return nil
}

// selectPlatform resolves the platform for a dispatch. Auto mode probes the
// remote platform first, then the local session manager, and defaults to
// local when both probes fail.
func (d *Dispatcher) selectPlatform(ctx context.Context, mode Mode) models.Platform {
	switch mode {
	case ModeLocal:
		return models.PlatformLocal
	case ModeRemote:
		return models.PlatformRemote
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()
	if d.remote != nil && d.remote.Probe(probeCtx) {
		return models.PlatformRemote
	}

	probeCtx, cancel = context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()
	if d.local.Probe(probeCtx) {
		return models.PlatformLocal
	}

	log.Printf("[dispatch] no platform passed its liveness probe, defaulting to local")
	return models.PlatformLocal
}

// notify posts a status comment on the task. Dispatch visibility is a
// required side effect, so failures are logged but never interrupt the
// dispatch itself.
func (d *Dispatcher) notify(ctx context.Context, taskID, message string) {
	if d.tracker == nil {
		return
	}
	if err := d.tracker.CreateComment(ctx, taskID, message); err != nil {
		log.Printf("[dispatch] notify %s: %v", taskID, err)
	}
}
