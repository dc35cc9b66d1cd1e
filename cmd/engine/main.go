package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/alerts"
	"github.com/rawblock/wallet-anomaly-engine/internal/analysis"
	"github.com/rawblock/wallet-anomaly-engine/internal/api"
	"github.com/rawblock/wallet-anomaly-engine/internal/config"
	"github.com/rawblock/wallet-anomaly-engine/internal/dataset"
	"github.com/rawblock/wallet-anomaly-engine/internal/db"
	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
	"github.com/rawblock/wallet-anomaly-engine/internal/messaging"
	"github.com/rawblock/wallet-anomaly-engine/internal/observability"
	"github.com/rawblock/wallet-anomaly-engine/internal/pricefeed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.Supply(log),

		fx.Provide(
			newDatasetStore,
			newHub,
			newPublisher,
			newAlertManager,
			newPricePoller,
			newAnalysisService,
			newRateLimiter,
			newRouter,
		),

		fx.Invoke(registerTracing),
		fx.Invoke(registerMessaging),
		fx.Invoke(registerHub),
		fx.Invoke(registerPricePoller),
		fx.Invoke(registerPreload),
		fx.Invoke(registerHTTPServer),

		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Application stopped successfully")
}

// newDatasetStore serves datasets from memory, backed by Postgres when it is
// enabled and reachable. A failed connection leaves the engine memory-only.
func newDatasetStore(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) dataset.Store {
	cache := dataset.NewMemoryStore()
	if !cfg.Database.Enabled {
		return dataset.NewLayered(cache, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, log)
	if err != nil {
		log.Warn("Failed to connect to PostgreSQL, continuing with in-memory datasets only", zap.Error(err))
		return dataset.NewLayered(cache, nil)
	}
	if err := pg.InitSchema(ctx); err != nil {
		log.Warn("DB schema init failed", zap.Error(err))
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pg.Close()
			return nil
		},
	})
	return dataset.NewLayered(cache, pg)
}

func newHub(cfg *config.Config, log *logger.Logger) *api.Hub {
	return api.NewHub(cfg.App.AllowedOrigins, log)
}

func newPublisher(cfg *config.Config, log *logger.Logger) *messaging.NATSPublisher {
	return messaging.NewNATSPublisher(cfg.NATS, log)
}

func newAlertManager(cfg *config.Config, hub *api.Hub, pub *messaging.NATSPublisher, log *logger.Logger) *alerts.Manager {
	var publisher alerts.Publisher
	if pub.Enabled() {
		publisher = pub
	}
	am := alerts.NewManager(func(a alerts.Alert) {
		hub.BroadcastEvent(api.EventSuspiciousAlert, a)
	}, publisher, cfg.Analysis.MaxHistory, log)

	for i, url := range cfg.Webhooks.URLs {
		am.RegisterWebhook(fmt.Sprintf("webhook-%d", i+1), url, cfg.Webhooks.MinSeverity, nil)
	}
	return am
}

// newPricePoller returns nil when the price feed is disabled.
func newPricePoller(cfg *config.Config, hub *api.Hub, log *logger.Logger) *pricefeed.Poller {
	if !cfg.PriceFeed.Enabled {
		return nil
	}
	client := pricefeed.NewClient(cfg.PriceFeed.BaseURL, cfg.PriceFeed.Timeout)
	return pricefeed.NewPoller(client, hub, cfg.PriceFeed.Interval, cfg.PriceFeed.ProjectionDays, log)
}

func newAnalysisService(store dataset.Store, am *alerts.Manager, hub *api.Hub, cfg *config.Config, log *logger.Logger) *analysis.Service {
	return analysis.NewService(store, am, hub, cfg, log)
}

func newRateLimiter(lc fx.Lifecycle, cfg *config.Config) *api.RateLimiter {
	rl := api.NewRateLimiter(cfg.App.RateLimitPerMin, cfg.App.RateLimitBurst)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			rl.Stop()
			return nil
		},
	})
	return rl
}

func newRouter(
	svc *analysis.Service,
	am *alerts.Manager,
	poller *pricefeed.Poller,
	hub *api.Hub,
	limiter *api.RateLimiter,
	cfg *config.Config,
	log *logger.Logger,
) *gin.Engine {
	deps := api.Dependencies{
		Service: svc,
		Alerts:  am,
		Hub:     hub,
		Limiter: limiter,
		Config:  cfg,
		Logger:  log,
	}
	// a nil *Poller must not become a non-nil interface
	if poller != nil {
		deps.Prices = poller
	}
	return api.SetupRouter(deps)
}

func registerTracing(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = observability.InitTracing(ctx, cfg.Tracing.OTLPEndpoint, log)
			if err != nil {
				return fmt.Errorf("failed to init tracing: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func registerMessaging(lc fx.Lifecycle, pub *messaging.NATSPublisher, am *alerts.Manager, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pub.Connect(ctx); err != nil {
				// alerts still reach the dashboard and webhooks without NATS
				log.Warn("NATS unavailable, alerts will not be published", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			am.Wait()
			return pub.Close()
		},
	})
}

func registerHub(lc fx.Lifecycle, hub *api.Hub) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go hub.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func registerPricePoller(lc fx.Lifecycle, poller *pricefeed.Poller) {
	if poller == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go poller.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func registerPreload(lc fx.Lifecycle, svc *analysis.Service, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ds, err := svc.Preload(ctx)
			if err != nil {
				return fmt.Errorf("failed to preload dataset: %w", err)
			}
			if ds != nil {
				log.Info("Preloaded dataset",
					zap.String("dataset", ds.ID),
					zap.Int("wallets", len(ds.Wallets)),
					zap.Int("transactions", len(ds.Transactions)))
			}
			return nil
		},
	})
}

func registerHTTPServer(lc fx.Lifecycle, router *gin.Engine, cfg *config.Config, log *logger.Logger) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("Engine running", zap.String("addr", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}
