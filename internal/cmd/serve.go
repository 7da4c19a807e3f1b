package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quotaward/quotaward/internal/config"
	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
	errwrap "github.com/quotaward/quotaward/internal/errors"
	"github.com/quotaward/quotaward/internal/observability"
	"github.com/quotaward/quotaward/internal/server"
	"github.com/quotaward/quotaward/internal/server/handlers"
	servermw "github.com/quotaward/quotaward/internal/server/middleware"
)

const telemetryNamespace = "quotaward"

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quota gateway",
	Long: `Start the quota gateway with graceful shutdown support.

Requests under /api/ are authenticated, checked against the quota policy and,
when admitted, proxied to upstream.url.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-validate config and policy (restart to apply)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration invalid")
		}

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, telemetryNamespace)
		log := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port, telemetryNamespace); err != nil {
				log.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		reg, err := loadPolicy(cfg)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "policy invalid")
		}

		openCtx, cancelOpen := context.WithTimeout(cmd.Context(), storeOpenTimeout(cfg))
		cs, err := openCounterStore(openCtx, cfg)
		cancelOpen()
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "counter store unavailable")
		}

		eng := newEngine(cfg, reg, cs)
		collector := newCollector(cfg, reg, cs)

		upstream, err := buildUpstream(cfg.Upstream)
		if err != nil {
			_ = cs.close()
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "upstream invalid")
		}

		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		handlers.SetPolicyInfo(reg.Version(), cs.driver)

		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("counter_store", handlers.CheckFunc(cs.ping))
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Dependencies{
			Quota:      eng,
			Reporter:   &engine.Reporter{Policy: reg, Store: cs},
			Cleaner:    collector,
			Health:     hm,
			Auth:       authConfig(cfg.Auth),
			Upstream:   upstream,
			AdminToken: cfg.Admin.Token,
			Timeouts: server.Timeouts{
				Read:  cfg.Server.ReadTimeout,
				Write: cfg.Server.WriteTimeout,
				Idle:  cfg.Server.IdleTimeout,
			},
		})

		log.Info("Initializing quota gateway",
			zap.String("version", versionInfo.Version),
			zap.String("policy_version", reg.Version()),
			zap.String("store_driver", cs.driver),
			zap.String("upstream", cfg.Upstream.URL),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("metrics", cfg.Metrics.Enabled))

		janitorCtx, stopJanitor := context.WithCancel(context.Background())
		if interval := cfg.Quota.Cleanup.Interval; interval > 0 {
			limiter := rate.NewLimiter(rate.Limit(batchesPerSecond(cfg)), 1)
			go collector.Run(janitorCtx, interval, cfg.Quota.Cleanup.MaxAge, limiter)
			log.Info("Counter janitor started",
				zap.Duration("interval", interval),
				zap.Duration("max_age", cfg.Quota.Cleanup.MaxAge))
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: server, janitor, metrics, store, logger.
		signals.OnShutdown(func(ctx context.Context) error {
			log.Info("Flushing logger...")
			if err := log.Sync(); err != nil {
				log.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := cs.close(); err != nil {
				log.Warn("Counter store close failed", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.ShutdownMetrics(); err != nil {
				log.Warn("Metrics exporter stop failed", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			stopJanitor()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			log.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			log.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			log.Info("Received SIGHUP: re-validating configuration")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					log.Error("Failed to reload config file", zap.String("file", viper.ConfigFileUsed()), zap.Error(err))
					return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
				}
			}
			next, err := loadConfig()
			if err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			nextPolicy, err := loadPolicy(next)
			if err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "policy reload failed")
			}

			// The policy registry is immutable for the life of the process.
			log.Info("Configuration and policy valid; restart to apply",
				zap.String("policy_version", nextPolicy.Version()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			log.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				log.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			stopJanitor()
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func storeOpenTimeout(cfg *config.Config) time.Duration {
	if cfg.Store.Timeout > 0 {
		return cfg.Store.Timeout
	}
	return 5 * time.Second
}

// buildUpstream returns nil when no upstream is configured.
func buildUpstream(cfg config.UpstreamConfig) (http.Handler, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, nil
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	return server.NewProxy(target, cfg.Timeout), nil
}

func authConfig(cfg config.AuthConfig) servermw.AuthConfig {
	keys := make(map[string]servermw.Principal, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[k.Key] = servermw.Principal{ID: k.Principal, Tier: string(core.ParseTier(k.Tier))}
	}
	return servermw.AuthConfig{
		Header:          cfg.Header,
		Keys:            keys,
		TrustHeaders:    cfg.TrustHeaders,
		PrincipalHeader: cfg.PrincipalHeader,
		TierHeader:      cfg.TierHeader,
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
