package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/ktime/internal/api"
	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/config"
	"github.com/goodtune/ktime/internal/gate"
	"github.com/goodtune/ktime/internal/metrics"
	"github.com/goodtune/ktime/internal/policy/opa"
	"github.com/goodtune/ktime/internal/systemd"
	"github.com/goodtune/ktime/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ktime service",
	Long:  `Start the ktime service with the local HTTP API, the gate watcher, the optional retention sweeper and the metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting ktime")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	c, err := openCore(cfg, clock.RealClock{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Int("cache_size", cfg.Storage.CacheSize).
		Str("policy_engine", cfg.Policy.Engine).
		Msg("Storage and policy initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Retention sweeper, off unless retention_days is set
	var retention *usage.RetentionScheduler
	if cfg.Usage.RetentionDays > 0 {
		retention, err = usage.NewRetentionScheduler(c.store, clock.RealClock{}, cfg.Usage.RetentionDays, cfg.Usage.CleanupTime, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize retention scheduler: %w", err)
		}
		retention.Start()
	}

	// Gate watcher
	watcher := gate.NewWatcher(
		c.gate,
		parseDuration(cfg.Usage.PollInterval, 5*time.Second),
		logDecisionChange(logger),
		logger,
	)
	watcher.Start(ctx)

	// API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(api.Config{
		ListenAddr:     apiAddr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, c.ledger, c.policy, c.gate, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	logger.Info().Msg("ktime startup complete")
	logger.Info().Msgf("API: http://%s/api/v1", apiAddr)
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	}

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}
	go systemd.RunWatchdog(ctx, logger)

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			reloadPolicy(c.decider, logger)
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	watcher.Stop()
	if retention != nil {
		retention.Stop()
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("ktime stopped")

	return nil
}

// reloadPolicy re-reads Rego policies on SIGHUP; the builtin engine has nothing to reload
func reloadPolicy(decider gate.Decider, logger zerolog.Logger) {
	d, ok := decider.(*opa.Decider)
	if !ok {
		logger.Info().Msg("SIGHUP received, builtin policy engine has nothing to reload")
		return
	}

	logger.Info().Msg("SIGHUP received, reloading policies...")
	if err := d.Reload(); err != nil {
		logger.Error().Err(err).Msg("Failed to reload policies")
		return
	}
	logger.Info().Msg("Policies reloaded successfully")
}

func logDecisionChange(logger zerolog.Logger) gate.ChangeFunc {
	return func(prev gate.Decision, st gate.Status) {
		event := logger.Info()
		if st.Decision == gate.Blocked {
			event = logger.Warn()
		}
		event.
			Str("decision", string(st.Decision)).
			Str("previous", string(prev)).
			Int("usage_minutes", st.UsageMinutes).
			Int("limit_minutes", st.LimitMinutes).
			Msg("Screen time decision")
	}
}
