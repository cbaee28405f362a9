package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arihanv/relay/internal/history"
)

var (
	historyLimit int
	historyTask  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the dispatch audit log",
	Long: `Print recorded dispatch attempts and terminal outcomes from the
project-local history database.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of entries to show")
	historyCmd.Flags().StringVar(&historyTask, "task", "", "Show entries for one task ID")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	path := history.DefaultPath(cfg.Workers.RepoPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No history yet. Run 'relay serve' to start recording.")
		return nil
	}

	store, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	var entries []history.Entry
	if historyTask != "" {
		entries, err = store.ForTask(historyTask)
	} else {
		entries, err = store.Recent(historyLimit)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No entries.")
		return nil
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, e := range entries {
		fmt.Printf("%s  %-10s %-8s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Identifier, e.Event)
		if e.Success {
			green.Printf(" ok")
		} else {
			red.Printf(" failed")
		}
		if e.Platform != "" {
			fmt.Printf("  %s/worker-%d", e.Platform, e.Worker)
		}
		if e.Detail != "" {
			fmt.Printf("  %s", e.Detail)
		}
		fmt.Println()
	}
	return nil
}
