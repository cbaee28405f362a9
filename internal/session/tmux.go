package session

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/arihanv/relay/pkg/models"
)

// workerCommand is the agent CLI invocation delivered into a session.
const workerCommand = "claude --print --allowedTools all"

// TmuxBackend drives worker sessions through the local tmux server. Each
// session runs inside a git worktree keyed by the task identifier, so
// concurrent workers never share a checkout.
type TmuxBackend struct {
	run          CommandRunner
	repoPath     string
	worktreeBase string
}

// NewTmuxBackend creates a local backend rooted at repoPath. Worktrees are
// created under worktreeBase.
func NewTmuxBackend(run CommandRunner, repoPath, worktreeBase string) *TmuxBackend {
	if worktreeBase == "" {
		worktreeBase = filepath.Join(repoPath, ".relay", "worktrees")
	}
	return &TmuxBackend{run: run, repoPath: repoPath, worktreeBase: worktreeBase}
}

// Platform identifies this backend as the local platform.
func (b *TmuxBackend) Platform() models.Platform {
	return models.PlatformLocal
}

// CreateOrReset kills any prior session for the slot, rebuilds the task's
// worktree, and starts a fresh detached session inside it.
func (b *TmuxBackend) CreateOrReset(ctx context.Context, slot int, taskID string) error {
	name := Name(slot)

	// Prior session and worktree may or may not exist.
	_, _ = b.run.Run(ctx, "", "tmux", "kill-session", "-t", name)

	worktree := filepath.Join(b.worktreeBase, sanitizeRef(taskID))
	_, _ = b.run.Run(ctx, b.repoPath, "git", "worktree", "remove", "--force", worktree)

	branch := "relay/" + sanitizeRef(taskID)
	if out, err := b.run.Run(ctx, b.repoPath, "git", "worktree", "add", "-B", branch, worktree); err != nil {
		return fmt.Errorf("create worktree for %s: %w: %s", taskID, err, out)
	}

	if out, err := b.run.Run(ctx, "", "tmux", "new-session", "-d", "-s", name, "-c", worktree); err != nil {
		return fmt.Errorf("create session %s: %w: %s", name, err, out)
	}
	return nil
}

// Deliver types the worker command with the payload into the slot's session.
func (b *TmuxBackend) Deliver(ctx context.Context, slot int, payload string) error {
	name := Name(slot)
	line := workerCommand + " " + shellQuote(payload)

	if out, err := b.run.Run(ctx, "", "tmux", "send-keys", "-t", name, "-l", line); err != nil {
		return fmt.Errorf("deliver to %s: %w: %s", name, err, out)
	}
	if out, err := b.run.Run(ctx, "", "tmux", "send-keys", "-t", name, "Enter"); err != nil {
		return fmt.Errorf("start %s: %w: %s", name, err, out)
	}
	return nil
}

// ListSessions returns the names of live worker sessions. A missing tmux
// server means no sessions.
func (b *TmuxBackend) ListSessions(ctx context.Context) ([]string, error) {
	out, err := b.run.Run(ctx, "", "tmux", "list-sessions", "-F", "#{session_name}")
	if err != nil {
		return nil, nil
	}
	var sessions []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.HasPrefix(line, "relay-worker-") {
			sessions = append(sessions, line)
		}
	}
	return sessions, nil
}

// Capture returns the current pane contents of the slot's session.
func (b *TmuxBackend) Capture(ctx context.Context, slot int) (string, error) {
	out, err := b.run.Run(ctx, "", "tmux", "capture-pane", "-p", "-t", Name(slot))
	if err != nil {
		return "", fmt.Errorf("capture %s: %w", Name(slot), err)
	}
	return string(out), nil
}

// Terminate kills the slot's session if it exists.
func (b *TmuxBackend) Terminate(ctx context.Context, slot int) error {
	out, err := b.run.Run(ctx, "", "tmux", "kill-session", "-t", Name(slot))
	if err != nil && !strings.Contains(string(out), "can't find session") {
		log.Printf("[session] kill %s: %v: %s", Name(slot), err, out)
	}
	return nil
}

// Probe reports whether a local tmux server can be reached.
func (b *TmuxBackend) Probe(ctx context.Context) bool {
	_, err := b.run.Run(ctx, "", "tmux", "-V")
	return err == nil
}

// sanitizeRef makes a task identifier safe for branch and directory names.
func sanitizeRef(id string) string {
	id = strings.ToLower(id)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}

// shellQuote wraps s in single quotes, escaping embedded single quotes, so
// the payload survives the session's shell untouched.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Verify TmuxBackend implements Backend at compile time.
var _ Backend = (*TmuxBackend)(nil)
