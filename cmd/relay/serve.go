package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arihanv/relay/internal/config"
	"github.com/arihanv/relay/internal/deps"
	"github.com/arihanv/relay/internal/dispatch"
	"github.com/arihanv/relay/internal/gateway"
	"github.com/arihanv/relay/internal/history"
	"github.com/arihanv/relay/internal/orchestrator"
	"github.com/arihanv/relay/internal/pool"
	"github.com/arihanv/relay/internal/session"
	"github.com/arihanv/relay/internal/tracker"
	"github.com/arihanv/relay/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch coordinator",
	Long: `Run the coordinator: webhook listener, request gateway, worker pool,
and platform dispatcher. Blocks until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Linear.APIKey == "" {
		return fmt.Errorf("linear.api_key is not configured (set LINEAR_API_KEY or edit %s)", config.GetUserConfigPath())
	}

	queue := gateway.New(gateway.Config{
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		Burst:             cfg.Gateway.Burst,
		InterRequestDelay: cfg.Gateway.InterRequestDelay,
		MaxRetries:        cfg.Gateway.MaxRetries,
		RetryDelay:        cfg.Gateway.RetryDelay,
	})
	client := tracker.NewGated(queue, tracker.NewLinearClient(cfg.Linear.APIKey))
	resolver := deps.New(client)
	workers := pool.New(cfg.Workers.Count)

	runner := session.NewRunner()
	local := session.NewTmuxBackend(runner, cfg.Workers.RepoPath, cfg.Workers.WorktreeDir)

	var remote session.Backend
	mode := dispatch.Mode(cfg.Dispatch.Mode)
	if cfg.Remote.Host != "" {
		remote = session.NewSSHBackend(runner, cfg.Remote.Host, cfg.Remote.RepoPath, cfg.Remote.WorktreeDir)
	} else if mode != dispatch.ModeLocal {
		log.Printf("[serve] no remote host configured, forcing local dispatch mode")
		mode = dispatch.ModeLocal
	}

	dispatcher := dispatch.New(dispatch.Config{
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
		ProbeTimeout: cfg.Dispatch.ProbeTimeout,
	}, local, remote, client)

	var recorder orchestrator.Recorder
	store, err := history.Open(history.DefaultPath(cfg.Workers.RepoPath))
	if err != nil {
		log.Printf("[serve] history store unavailable, continuing without audit log: %v", err)
	} else {
		defer store.Close()
		recorder = store
	}

	orch := orchestrator.New(orchestrator.Config{
		Mode:            mode,
		MonitorInterval: cfg.Workers.MonitorInterval,
		BranchPrefix:    cfg.Workers.BranchPrefix,
	}, client, resolver, workers, dispatcher, queue, recorder)

	server := webhook.New(webhook.Config{
		Addr:         cfg.Server.Listen,
		Secret:       cfg.Linear.WebhookSecret,
		TargetUserID: cfg.Linear.TargetUserID,
	}, orch)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })

	log.Printf("[serve] coordinator up: %d workers, %s dispatch, gateway %d rps",
		workers.Size(), mode, cfg.Gateway.RequestsPerSecond)
	err = g.Wait()
	if err != nil && err != context.Canceled {
		return err
	}
	log.Printf("[serve] shut down cleanly")
	return nil
}
