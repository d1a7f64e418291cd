package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/bot"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/channels/whatsapp"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/sanitize"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/store"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/webui"
)

// newServeCmd creates the `zapclaw serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WhatsApp assistant daemon",
		Long: `Start ZapClaw as a daemon: connects to WhatsApp, answers direct
messages through the configured LLM provider and serves the admin API.

Examples:
  zapclaw serve
  zapclaw serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	for _, dir := range []string{filepath.Dir(cfg.Database), filepath.Dir(cfg.WhatsApp.SessionPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}

	st, err := store.Open(cfg.Database, sanitize.New(cfg.Sanitize.MaxLen), logger)
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wa := whatsapp.New(cfg.WhatsApp, logger)
	if err := wa.Connect(ctx); err != nil {
		return fmt.Errorf("connecting WhatsApp: %w", err)
	}
	defer wa.Disconnect()

	gateway := bot.NewGateway(cfg.API, logger)
	assistant := bot.NewAssistant(cfg, wa, st, gateway, logger)
	assistant.Start(ctx)
	defer assistant.Stop()

	// Scheduled destructive cleanup, when configured.
	if cfg.Cleanup.Schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Cleanup.Schedule, func() {
			removed, err := st.CleanupCorrupted()
			if err != nil {
				logger.Error("scheduled cleanup failed", "error", err)
				return
			}
			logger.Info("scheduled cleanup done", "removed", removed)
		})
		if err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Cleanup.Schedule, err)
		}
		c.Start()
		defer c.Stop()
		logger.Info("cleanup scheduled", "schedule", cfg.Cleanup.Schedule)
	}

	// Admin API.
	webServer := webui.New(webui.Config{
		Addr:      cfg.HTTP.Addr,
		AdminUser: cfg.HTTP.AdminUser,
		AdminPass: cfg.HTTP.AdminPass,
		StaticDir: cfg.HTTP.StaticDir,
	}, assistant, wa, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- webServer.Start(ctx)
	}()

	logger.Info("zapclaw running",
		"http", cfg.HTTP.Addr,
		"provider", cfg.API.Provider,
		"database", cfg.Database)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received, stopping...", "signal", sig.String())
		cancel()
		return <-serverErr
	case err := <-serverErr:
		return err
	}
}
