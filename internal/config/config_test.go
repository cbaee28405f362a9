package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
linear:
  api_key: lin_api_test
  target_user_id: user-1
server:
  listen: ":9090"
workers:
  count: 2
  repo_path: /srv/repo
  monitor_interval: 10s
gateway:
  requests_per_second: 5
dispatch:
  mode: local
remote:
  host: worker@build-box
  repo_path: /srv/repo
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Linear.APIKey != "lin_api_test" {
		t.Errorf("api key = %q", cfg.Linear.APIKey)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Workers.Count != 2 || cfg.Workers.MonitorInterval != 10*time.Second {
		t.Errorf("workers = %+v", cfg.Workers)
	}
	if cfg.Gateway.RequestsPerSecond != 5 {
		t.Errorf("gateway rps = %d", cfg.Gateway.RequestsPerSecond)
	}
	if cfg.Dispatch.Mode != "local" {
		t.Errorf("dispatch mode = %q", cfg.Dispatch.Mode)
	}
	if cfg.Remote.Host != "worker@build-box" {
		t.Errorf("remote host = %q", cfg.Remote.Host)
	}
}

func TestDefaultsApplied(t *testing.T) {
	path := writeConfig(t, "linear:\n  api_key: k\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Workers.Count != 4 {
		t.Errorf("worker count = %d, want default 4", cfg.Workers.Count)
	}
	if cfg.Gateway.RequestsPerSecond != 10 || cfg.Gateway.Burst != 50 {
		t.Errorf("gateway defaults = %+v", cfg.Gateway)
	}
	if cfg.Gateway.InterRequestDelay != 50*time.Millisecond {
		t.Errorf("inter-request delay = %v", cfg.Gateway.InterRequestDelay)
	}
	if cfg.Dispatch.Mode != "auto" || cfg.Dispatch.MaxAttempts != 2 {
		t.Errorf("dispatch defaults = %+v", cfg.Dispatch)
	}
	if cfg.Workers.MonitorInterval != 30*time.Second {
		t.Errorf("monitor interval = %v", cfg.Workers.MonitorInterval)
	}
}

func TestWorktreeDirDerivedFromRepoPath(t *testing.T) {
	path := writeConfig(t, "workers:\n  repo_path: /srv/repo\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	want := filepath.Join("/srv/repo", ".relay", "worktrees")
	if cfg.Workers.WorktreeDir != want {
		t.Errorf("worktree dir = %q, want %q", cfg.Workers.WorktreeDir, want)
	}
}

func TestEnvExpansionInAPIKey(t *testing.T) {
	t.Setenv("TEST_RELAY_KEY", "expanded-key")
	path := writeConfig(t, "linear:\n  api_key: ${TEST_RELAY_KEY}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Linear.APIKey != "expanded-key" {
		t.Errorf("api key = %q, want env-expanded value", cfg.Linear.APIKey)
	}
}

func TestDefaultMatchesLoadedDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Gateway.RequestsPerSecond != 10 || cfg.Workers.Count != 4 {
		t.Errorf("Default() = %+v, drifted from setDefaults", cfg)
	}
}
