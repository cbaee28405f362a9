package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arihanv/relay/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the merged configuration after applying defaults, the user config
file, project overrides, and environment variables. Secrets are masked.

Configuration is stored at ~/.config/relay/config.yaml; project-specific
overrides go in .relay.yaml.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	masked := *cfg
	masked.Linear.APIKey = maskSecret(cfg.Linear.APIKey)
	masked.Linear.WebhookSecret = maskSecret(cfg.Linear.WebhookSecret)

	out, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}

	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Fprintf(os.Stderr, "# project overrides: %s\n", project)
	}
	fmt.Print(string(out))
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "****"
}
