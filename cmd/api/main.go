package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/cache"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/config"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/extractor"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/relay"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/tracing"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "vidrelay",
		Short:        "HTTP API for video metadata and direct media URLs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", os.Getenv("CONFIG_PATH"), "Path to a YAML config file")
	root.PersistentFlags().IntP("port", "p", 0, "Override the HTTP listen port")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd)
			},
		},
		&cobra.Command{
			Use:   "probe <url|id>",
			Short: "Print the metadata of a single video as JSON",
			Args:  cobra.ExactArgs(1),
			RunE:  runProbe,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the installed yt-dlp version",
			RunE:  runVersion,
		},
	)

	return root
}

// loadConfig reads the config file named by --config and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(lo.Must(cmd.Flags().GetString("config")))
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = lo.Must(cmd.Flags().GetInt("port"))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if !cfg.APIKeyConfigured() {
		logger.Warn("No API key configured, running in anonymous mode")
	}

	_, closer, err := tracing.InitTracer(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ext := extractor.New(cfg.Extractor, logger)
	if cfg.Extractor.UpdateOnStart {
		go selfUpdate(ctx, ext, logger)
	}

	var redis *cache.Cache
	if cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis" {
		redis, err = cache.NewCache(cfg.Redis)
		if err != nil {
			return err
		}
		defer redis.Close()
	}
	limiter := newLimiter(ctx, cfg, redis)

	var health HealthChecker
	if redis != nil {
		health = redis
	}
	api := NewAPI(cfg, ext, relay.New(cfg.Relay, logger), health, logger)

	router, err := setupRouter(api, limiter)
	if err != nil {
		return err
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server stopped", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"environment":        cfg.Environment,
			"api_key_configured": cfg.APIKeyConfigured(),
			"port":               cfg.Server.Port,
		}).Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("Metrics server forced to shutdown", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// newLimiter picks the rate limit backend. The in-memory limiter gets a
// background eviction loop bound to ctx.
func newLimiter(ctx context.Context, cfg *config.Config, redis *cache.Cache) middleware.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if redis != nil {
		return cache.NewWindowLimiter(redis, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go rl.Cleanup(ctx, time.Minute, 10*time.Minute)
	return rl
}

// selfUpdate runs yt-dlp -U once. Failures are only logged.
func selfUpdate(ctx context.Context, ext *extractor.Extractor, logger *logging.Logger) {
	out, err := ext.SelfUpdate(ctx)
	if err != nil {
		logger.Warnf("Failed to update yt-dlp: %v", err)
		return
	}
	logger.Infof("yt-dlp update result: %s", out)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ext := extractor.New(cfg.Extractor, logging.New(cmd.ErrOrStderr(), cfg.Logging.Level))
	info, err := ext.FetchMetadata(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func runVersion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ext := extractor.New(cfg.Extractor, logging.Nop())
	version, err := ext.Version(cmd.Context())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), version)
	return err
}
