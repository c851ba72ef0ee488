package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/talemachine/talemachine/internal/agent"
	"github.com/talemachine/talemachine/internal/approval"
	"github.com/talemachine/talemachine/internal/graph"
	"github.com/talemachine/talemachine/internal/maintenance"
	"github.com/talemachine/talemachine/internal/model"
	"github.com/talemachine/talemachine/internal/mutation"
	"github.com/talemachine/talemachine/internal/notify"
	"github.com/talemachine/talemachine/internal/server"
	"github.com/talemachine/talemachine/internal/store"
	"github.com/talemachine/talemachine/internal/tool"
	"github.com/talemachine/talemachine/internal/tool/builtin"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TaleMachine HTTP server",
	Long:  `Starts the API server, the approval gate, and the background maintenance scheduler that repairs stale graph entries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		provider, err := model.NewProvider(cfg.Models)
		if err != nil {
			return fmt.Errorf("failed to configure model provider: %w", err)
		}

		syncer, closeGraph, err := openGraph(ctx, provider)
		if err != nil {
			return err
		}
		defer closeGraph()

		svc := mutation.NewService(st, syncer)

		gate, err := approval.NewGate(cfg.State.Dir)
		if err != nil {
			return fmt.Errorf("failed to open approval gate: %w", err)
		}
		defer gate.Close()

		registry := tool.NewRegistry()
		builtin.RegisterAll(registry, svc, st)
		runner := tool.NewRunner(registry, gate, cfg.Governance)

		transcripts, err := agent.NewTranscriptStore(cfg.State.Dir)
		if err != nil {
			return fmt.Errorf("failed to open transcript store: %w", err)
		}
		runtime := agent.NewRuntime(provider, runner, gate, transcripts, st, cfg.Agent, cfg.Models.Chat)

		scheduler := maintenance.NewScheduler(st, svc, gate, cfg.Scheduler)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer scheduler.Stop()

		srv, err := server.New(cfg.Server, runtime, svc, st, gate, notify.FromConfig(cfg.Notifier))
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("Shutting down")
		shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
		if err != nil {
			shutdownTimeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func openStore(ctx context.Context) (store.Store, func(), error) {
	if cfg.Postgres.InMemory {
		slog.Warn("Using in-memory store; data will not survive restarts")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := store.Open(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return store.NewPostgresStore(db), func() { db.Close() }, nil
}

func openGraph(ctx context.Context, provider model.Provider) (mutation.GraphSyncer, func(), error) {
	if cfg.Graph.Disabled {
		slog.Warn("Graph sync disabled; chapters will be flagged unsynced")
		return graph.DisabledSync{}, func() {}, nil
	}

	gs, err := graph.NewNeo4jStore(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	extractor := graph.NewModelExtractor(provider, cfg.Models.Extraction)
	return graph.NewSync(gs, extractor), func() {
		if err := gs.Close(context.Background()); err != nil {
			slog.Warn("Failed to close graph driver", "error", err)
		}
	}, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
