package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-extractor/internal/api"
	"github.com/insightdelivered/statement-extractor/internal/assembler"
	"github.com/insightdelivered/statement-extractor/internal/bankconfig"
	"github.com/insightdelivered/statement-extractor/internal/config"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/store"
	"github.com/insightdelivered/statement-extractor/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction HTTP service",
	Long: `Start the HTTP API and the background worker pool. Uploaded
statements are queued in SQLite and processed asynchronously; results
are served back as JSON, CSV or Excel.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	ttl := time.Duration(cfg.Banks.CacheTTLSeconds) * time.Second
	registry := bankconfig.New(cfg.Banks.File, ttl, logger)
	resolver := extractor.NewResolver(registry, ttl, logger)
	asm := assembler.New(resolver, logger)
	pool := worker.NewPool(st, asm, cfg.Workers.Count, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool.Start(ctx)

	srv := api.New(api.Deps{
		Store:      st,
		Assembler:  asm,
		Registry:   registry,
		Resolver:   resolver,
		Pool:       pool,
		Logger:     logger,
		UploadsDir: cfg.UploadsDir(),
		BodyLimit:  cfg.Server.BodyLimitMB << 20,
		Version:    version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	if err := srv.Shutdown(); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	pool.Wait()
	logger.Info("service stopped")
	return nil
}
