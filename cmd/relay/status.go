package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arihanv/relay/internal/orchestrator"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running coordinator's state",
	Long: `Query a running coordinator's status endpoint and print active worker
sessions, the blocked-task backlog, and gateway pressure.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "Coordinator base URL")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(statusAddr + "/api/status")
	if err != nil {
		return fmt.Errorf("coordinator not reachable at %s: %w", statusAddr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned %s", resp.Status)
	}

	var st orchestrator.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	bold.Printf("Workers: %d/%d busy\n", len(st.Busy), st.PoolSize)
	for _, s := range st.Active {
		green.Printf("  worker %d", s.Worker)
		fmt.Printf("  %-10s %-8s since %s\n", s.Identifier, s.Platform, s.StartedAt.Format(time.Kitchen))
	}
	if len(st.Active) == 0 {
		fmt.Println("  (idle)")
	}

	bold.Printf("Backlog: %d blocked\n", len(st.Backlog))
	for _, ev := range st.Backlog {
		yellow.Printf("  %s", ev.Identifier)
		fmt.Println()
	}

	bold.Println("Gateway:")
	fmt.Printf("  queued %d, in trailing window %d, draining: %v\n",
		st.Gateway.QueueDepth, st.Gateway.WindowCount, st.Gateway.Processing)
	return nil
}
