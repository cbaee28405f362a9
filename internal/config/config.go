// Package config handles configuration loading for the relay coordinator.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all coordinator configuration.
type Config struct {
	Linear   LinearConfig   `mapstructure:"linear"`
	Server   ServerConfig   `mapstructure:"server"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Remote   RemoteConfig   `mapstructure:"remote"`
}

// LinearConfig holds issue-tracker API settings.
type LinearConfig struct {
	// APIKey authenticates GraphQL calls. ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// WebhookSecret verifies webhook signatures.
	WebhookSecret string `mapstructure:"webhook_secret"`
	// TargetUserID filters assignment events to one user.
	TargetUserID string `mapstructure:"target_user_id"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// WorkersConfig holds worker pool and session settings.
type WorkersConfig struct {
	// Count is the number of worker slots.
	Count int `mapstructure:"count"`
	// RepoPath is the git repository workers operate on.
	RepoPath string `mapstructure:"repo_path"`
	// WorktreeDir is where per-task worktrees are created. Defaults to
	// <repo_path>/.relay/worktrees.
	WorktreeDir string `mapstructure:"worktree_dir"`
	// BranchPrefix prefixes worker feature branches.
	BranchPrefix string `mapstructure:"branch_prefix"`
	// MonitorInterval is the session-output polling interval.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
}

// GatewayConfig holds request gateway tuning.
type GatewayConfig struct {
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	InterRequestDelay time.Duration `mapstructure:"inter_request_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
}

// DispatchConfig holds platform dispatch settings.
type DispatchConfig struct {
	// Mode is local, remote, or auto.
	Mode string `mapstructure:"mode"`
	// MaxAttempts is the handoff attempt count per dispatch.
	MaxAttempts int `mapstructure:"max_attempts"`
	// ProbeTimeout bounds platform liveness probes.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// RemoteConfig holds the remote execution platform's settings.
type RemoteConfig struct {
	// Host is the SSH destination (user@host). Empty disables the remote
	// platform.
	Host string `mapstructure:"host"`
	// RepoPath is the repository path on the remote host.
	RepoPath string `mapstructure:"repo_path"`
	// WorktreeDir is the worktree directory on the remote host.
	WorktreeDir string `mapstructure:"worktree_dir"`
}

// Load loads configuration with the usual precedence (highest to lowest):
// environment variables (RELAY_*), project config (.relay.yaml in the
// current directory or a parent), user config (~/.config/relay/config.yaml),
// built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()
	v.BindEnv("linear.api_key", "LINEAR_API_KEY")
	v.BindEnv("linear.webhook_secret", "LINEAR_WEBHOOK_SECRET")

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Linear.APIKey = os.ExpandEnv(cfg.Linear.APIKey)
	cfg.Linear.WebhookSecret = os.ExpandEnv(cfg.Linear.WebhookSecret)
	if cfg.Workers.WorktreeDir == "" && cfg.Workers.RepoPath != "" {
		cfg.Workers.WorktreeDir = filepath.Join(cfg.Workers.RepoPath, ".relay", "worktrees")
	}
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if one
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("linear.api_key", "")
	v.SetDefault("linear.webhook_secret", "")
	v.SetDefault("linear.target_user_id", "")

	v.SetDefault("server.listen", ":8080")

	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.repo_path", ".")
	v.SetDefault("workers.branch_prefix", "relay")
	v.SetDefault("workers.monitor_interval", "30s")

	v.SetDefault("gateway.requests_per_second", 10)
	v.SetDefault("gateway.burst", 50)
	v.SetDefault("gateway.inter_request_delay", "50ms")
	v.SetDefault("gateway.max_retries", 3)
	v.SetDefault("gateway.retry_delay", "1s")

	v.SetDefault("dispatch.mode", "auto")
	v.SetDefault("dispatch.max_attempts", 2)
	v.SetDefault("dispatch.probe_timeout", "4s")
}

// getUserConfigDir returns the XDG config directory for relay.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "relay")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "relay")
	}
	return filepath.Join(home, ".config", "relay")
}

// findProjectConfig searches for .relay.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".relay.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8080"},
		Workers: WorkersConfig{
			Count:           4,
			RepoPath:        ".",
			BranchPrefix:    "relay",
			MonitorInterval: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			RequestsPerSecond: 10,
			Burst:             50,
			InterRequestDelay: 50 * time.Millisecond,
			MaxRetries:        3,
			RetryDelay:        time.Second,
		},
		Dispatch: DispatchConfig{
			Mode:         "auto",
			MaxAttempts:  2,
			ProbeTimeout: 4 * time.Second,
		},
	}
}
