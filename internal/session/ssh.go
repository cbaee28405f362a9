package session

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/arihanv/relay/pkg/models"
)

// SSHBackend drives worker sessions on a remote host over SSH. The remote
// host runs the same tmux/worktree layout as the local backend; every
// operation is a tmux or git command executed through ssh.
type SSHBackend struct {
	run          CommandRunner
	host         string
	repoPath     string
	worktreeBase string
}

// NewSSHBackend creates a remote backend. host is an ssh destination
// (e.g. "worker@build-box"); repoPath is the repository checkout on that
// host.
func NewSSHBackend(run CommandRunner, host, repoPath, worktreeBase string) *SSHBackend {
	if worktreeBase == "" {
		worktreeBase = path.Join(repoPath, ".relay", "worktrees")
	}
	return &SSHBackend{run: run, host: host, repoPath: repoPath, worktreeBase: worktreeBase}
}

// Platform identifies this backend as the remote platform.
func (b *SSHBackend) Platform() models.Platform {
	return models.PlatformRemote
}

// ssh runs a remote command. BatchMode keeps a missing key from hanging on a
// password prompt; the connect timeout bounds probe latency.
func (b *SSHBackend) ssh(ctx context.Context, remote ...string) ([]byte, error) {
	args := []string{"-o", "BatchMode=yes", "-o", "ConnectTimeout=4", b.host}
	args = append(args, remote...)
	return b.run.Run(ctx, "", "ssh", args...)
}

// CreateOrReset kills any prior session for the slot, rebuilds the task's
// worktree on the remote host, and starts a fresh detached session in it.
func (b *SSHBackend) CreateOrReset(ctx context.Context, slot int, taskID string) error {
	name := Name(slot)

	_, _ = b.ssh(ctx, "tmux", "kill-session", "-t", name)

	worktree := path.Join(b.worktreeBase, sanitizeRef(taskID))
	_, _ = b.ssh(ctx, "git", "-C", b.repoPath, "worktree", "remove", "--force", worktree)

	branch := "relay/" + sanitizeRef(taskID)
	if out, err := b.ssh(ctx, "git", "-C", b.repoPath, "worktree", "add", "-B", branch, worktree); err != nil {
		return fmt.Errorf("create remote worktree for %s: %w: %s", taskID, err, out)
	}

	if out, err := b.ssh(ctx, "tmux", "new-session", "-d", "-s", name, "-c", worktree); err != nil {
		return fmt.Errorf("create remote session %s: %w: %s", name, err, out)
	}
	return nil
}

// Deliver types the worker command with the payload into the remote session.
func (b *SSHBackend) Deliver(ctx context.Context, slot int, payload string) error {
	name := Name(slot)
	line := workerCommand + " " + shellQuote(payload)

	if out, err := b.ssh(ctx, "tmux", "send-keys", "-t", name, "-l", shellQuote(line)); err != nil {
		return fmt.Errorf("deliver to remote %s: %w: %s", name, err, out)
	}
	if out, err := b.ssh(ctx, "tmux", "send-keys", "-t", name, "Enter"); err != nil {
		return fmt.Errorf("start remote %s: %w: %s", name, err, out)
	}
	return nil
}

// ListSessions returns the names of live worker sessions on the remote host.
func (b *SSHBackend) ListSessions(ctx context.Context) ([]string, error) {
	out, err := b.ssh(ctx, "tmux", "list-sessions", "-F", "#{session_name}")
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

// Capture returns the current pane contents of the remote session.
func (b *SSHBackend) Capture(ctx context.Context, slot int) (string, error) {
	out, err := b.ssh(ctx, "tmux", "capture-pane", "-p", "-t", Name(slot))
	if err != nil {
		return "", fmt.Errorf("capture remote %s: %w", Name(slot), err)
	}
	return string(out), nil
}

// Terminate kills the remote session if it exists.
func (b *SSHBackend) Terminate(ctx context.Context, slot int) error {
	out, err := b.ssh(ctx, "tmux", "kill-session", "-t", Name(slot))
	if err != nil && !strings.Contains(string(out), "can't find session") {
		log.Printf("[session] kill remote %s: %v: %s", Name(slot), err, out)
	}
	return nil
}

// Probe reports whether the remote host accepts connections within the
// connect timeout.
func (b *SSHBackend) Probe(ctx context.Context) bool {
	_, err := b.ssh(ctx, "true")
	return err == nil
}

// Verify SSHBackend implements Backend at compile time.
var _ Backend = (*SSHBackend)(nil)
