// Keepbrain is the note-processing daemon: it consumes note jobs from the
// durable queue, runs them through an AI provider to extract structured
// ideas, and exposes an admin HTTP surface for ingestion and settings.
//
// Configuration is loaded from ~/.config/keepbrain/config.yaml and the
// environment. Secrets come from the environment only:
//
//	VAULT_PASSPHRASE=...    encryption passphrase for stored API keys
//	AI_ANTHROPIC_API_KEY=.. optional instance-wide fallback key
//
// Usage:
//
//	keepbrain                  Start the daemon
//	keepbrain --config x.yaml  Start with an explicit config file
//	keepbrain version          Show version information
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/LucaBras1/keep-brain/internal/ai"
	"github.com/LucaBras1/keep-brain/internal/config"
	"github.com/LucaBras1/keep-brain/internal/logging"
	"github.com/LucaBras1/keep-brain/internal/processor"
	"github.com/LucaBras1/keep-brain/internal/queue"
	"github.com/LucaBras1/keep-brain/internal/server"
	"github.com/LucaBras1/keep-brain/internal/store"
	"github.com/LucaBras1/keep-brain/internal/vault"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  keepbrain           Start the keepbrain daemon\n")
			fmt.Fprintf(os.Stderr, "  keepbrain version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("keepbrain: %v", err)
	}

	log.Println("Shutdown complete")
}

func printVersion() {
	fmt.Printf("keepbrain\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon together and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting keepbrain",
		zap.String("version", version),
		zap.String("db", cfg.Database.Path),
		zap.String("queue", cfg.Queue.URL),
		zap.Int("http_port", cfg.Server.HTTPPort))

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	nc, err := nats.Connect(cfg.Queue.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", cfg.Queue.URL, err)
	}
	defer nc.Close()
	logger.Info("connected to NATS", zap.String("url", cfg.Queue.URL))

	dispatcher, err := queue.NewDispatcher(nc, logger.Named("queue"))
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}

	v := vault.New(cfg.Vault.Passphrase.Value())
	if !cfg.Vault.Passphrase.IsSet() {
		logger.Warn("vault passphrase not set; stored API keys will be unusable")
	}

	resolver := ai.NewResolver(st, v, ai.ResolverConfig{
		DefaultAnthropicKey: cfg.AI.AnthropicAPIKey.Value(),
		AnthropicBaseURL:    cfg.AI.AnthropicBaseURL,
		OpenAIBaseURL:       cfg.AI.OpenAIBaseURL,
		Timeout:             cfg.AI.Timeout.Duration(),
	}, logger.Named("ai"))

	proc := processor.New(st, resolver, logger.Named("processor"))
	batch := processor.NewBatchRunner(st, proc, logger.Named("batch"))

	worker, err := queue.NewWorker(nc, proc, logger.Named("worker"))
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	validator := &ai.Validator{
		AnthropicBaseURL: cfg.AI.AnthropicBaseURL,
		OpenAIBaseURL:    cfg.AI.OpenAIBaseURL,
		Timeout:          cfg.AI.Timeout.Duration(),
	}

	srv, err := server.NewServer(st, dispatcher, batch, validator, v,
		logger.Named("http"), &server.Config{
			Host: cfg.Server.HTTPHost,
			Port: cfg.Server.HTTPPort,
		})
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("queue worker: %w", err)
		}
	}()

	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}
