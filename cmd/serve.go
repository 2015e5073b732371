package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance/internal/accounts"
	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database/postgres"
	"github.com/kozaktomas/attendance/internal/descriptor"
	"github.com/kozaktomas/attendance/internal/ledger"
	"github.com/kozaktomas/attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the attendance HTTP API.
Migrations are applied on startup. Face descriptors are extracted by the
service configured with FACE_SERVICE_URL.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// initHNSW builds or loads the descriptor HNSW indexes for nearest matching.
func initHNSW(ctx context.Context, repo *postgres.IdentityRepository, indexPath string, logger *slog.Logger) {
	if err := repo.EnableHNSW(ctx, indexPath); err != nil {
		logger.Warn("failed to build descriptor HNSW index, falling back to pgvector", "error", err)
		return
	}
	logger.Info("descriptor HNSW index ready", "descriptors", repo.HNSWCount(), "path", indexPath)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.HTTP.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.HTTP.Host = host
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	identities := postgres.NewIdentityRepository(pool, logger)
	sessions := postgres.NewSessionRepository(pool)
	if cfg.Database.HNSWEnabled {
		initHNSW(ctx, identities, cfg.Database.HNSWIndexPath, logger)
	}

	if cfg.Auth.DevSecret {
		logger.Warn("SECRET_KEY is not set, using the development signing key")
	}
	tokens := auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.TokenLifetime, time.Now)

	extractor := descriptor.NewClient(cfg.Face, logger)
	l := ledger.New(sessions, cfg.Face.AttendanceTolerance, ledger.WithLogger(logger))
	svc := accounts.NewService(identities, extractor, tokens, l, cfg.Face, logger)

	server := web.NewServer(cfg, svc, tokens, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down")
		if cfg.Database.HNSWEnabled && cfg.Database.HNSWIndexPath != "" {
			if err := identities.SaveHNSWIndex(); err != nil {
				logger.Warn("failed to save descriptor HNSW index", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
