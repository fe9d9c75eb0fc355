package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/formflow/config"
	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/gateway"
	gatewayhttp "github.com/c360/formflow/gateway/http"
	"github.com/c360/formflow/health"
	"github.com/c360/formflow/metric"
	"github.com/c360/formflow/natsclient"
	"github.com/c360/formflow/navigation"
	"github.com/c360/formflow/plugin"
	"github.com/c360/formflow/relationship"
	"github.com/c360/formflow/session"
	"github.com/c360/formflow/shortcode"
	"github.com/c360/formflow/store"
)

// app holds the wired server and everything it must release on shutdown
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *metric.MetricsRegistry
	metrics  *metric.Metrics

	nats     *natsclient.Client
	store    store.Store
	sessions *session.Store

	httpServer    *http.Server
	metricsServer *metric.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
	}
	a.metrics = a.registry.CoreMetrics()

	flows, err := loadFlows(cfg, logger)
	if err != nil {
		return nil, err
	}

	pluginOpts := []plugin.Option{
		plugin.WithLogger(logger),
		plugin.WithMissHook(func(kind plugin.Kind, _ string) {
			a.metrics.RecordPluginMiss(string(kind))
		}),
	}
	var scripted []plugin.Condition
	if cfg.Flows.LuaDir != "" {
		scripted, err = plugin.LoadLuaConditions(cfg.Flows.LuaDir, logger)
		if err != nil {
			return nil, fmt.Errorf("load lua conditions: %w", err)
		}
		logger.Info("Loaded scripted conditions", "dir", cfg.Flows.LuaDir, "count", len(scripted))
	}
	conditions, err := plugin.NewConditions(scripted, pluginOpts...)
	if err != nil {
		return nil, err
	}
	actions, err := plugin.NewActions(nil, pluginOpts...)
	if err != nil {
		return nil, err
	}
	filters, err := plugin.NewFilters(nil, pluginOpts...)
	if err != nil {
		return nil, err
	}

	if err := a.openStore(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}

	shortCodes, err := shortcode.NewGenerator(cfg.Policies.ShortCodes, a.store, logger)
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	engine, err := navigation.NewEngine(navigation.Deps{
		Flows:         flows,
		Conditions:    conditions,
		Actions:       actions,
		Relationships: relationship.NewManager(flows, filters, logger),
		Store:         a.store,
		ShortCodes:    shortCodes,
		Policies: navigation.Policies{
			LockedAfterSubmit: cfg.Policies.LockedAfterSubmit,
			Disabled:          cfg.Policies.Disabled,
		},
	}, navigation.WithLogger(logger), navigation.WithMetrics(a.metrics))
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	monitor := health.NewMonitor(appName)
	monitor.Register("storage", a.store.Ping, true)
	if a.nats != nil {
		monitor.Register("nats", func(context.Context) error {
			if !a.nats.IsHealthy() {
				return errors.WrapTransient(errors.ErrStorageUnavailable, "natsclient", "IsHealthy",
					"connection "+a.nats.Status().String())
			}
			return nil
		}, false)
	}

	a.sessions, err = session.NewStore(ctx, cfg.Session.TTL, cfg.Session.CleanupInterval,
		session.WithActiveGauge(a.metrics.SessionsActive), session.WithMetrics(a.registry))
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	gw, err := gatewayhttp.NewServer(gateway.Config{
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.Secure,
		RateLimit:    cfg.HTTP.RateLimit,
		RateBurst:    cfg.HTTP.RateBurst,
	}, gatewayhttp.Deps{
		Engine:   engine,
		Sessions: a.sessions,
		Store:    a.store,
		Health:   monitor,
		Metrics:  a.metrics,
		Logger:   logger,
	})
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	a.httpServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           gw.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	if cfg.Metrics.Enabled {
		a.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry)
	}
	return a, nil
}

// loadFlows reads every flow definition and reports graph problems
func loadFlows(cfg *config.Config, logger *slog.Logger) (*flowconfig.Registry, error) {
	flows, err := flowconfig.LoadRegistry(cfg.Flows.Paths...)
	if err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}
	for _, name := range flows.Names() {
		fc, err := flows.Flow(name)
		if err != nil {
			return nil, err
		}
		result := flowconfig.Analyze(fc)
		if result.ValidationStatus != "healthy" {
			logger.Warn("Flow graph has issues",
				"flow", name,
				"unreachable", result.UnreachableScreens,
				"fallback_issues", len(result.FallbackIssues))
		}
	}
	logger.Info("Loaded flows", "flows", flows.Names())
	return flows, nil
}

// openStore connects the configured submission backend
func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg
	opts := []store.Option{store.WithLogger(a.logger)}

	switch cfg.Storage.Backend {
	case store.BackendMemory:
		a.store = store.NewMemoryStore(opts...)

	case store.BackendSQLite:
		st, err := store.OpenSQLite(ctx, cfg.Storage.SQLitePath, opts...)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = st

	case store.BackendKV:
		client, err := natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","),
			natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
			natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
			natsclient.WithTimeout(cfg.NATS.Timeout),
			natsclient.WithUserInfo(cfg.NATS.Username, cfg.NATS.Password),
			natsclient.WithToken(cfg.NATS.Token),
			natsclient.WithClientName(appName),
			natsclient.WithLogger(a.logger),
			natsclient.WithHealthChangeCallback(a.metrics.RecordNATSStatus),
		)
		if err != nil {
			return fmt.Errorf("create NATS client: %w", err)
		}
		a.nats = client

		a.logger.Info("Connecting to NATS", "urls", cfg.NATS.URLs)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.WaitForConnection(connCtx); err != nil {
			return fmt.Errorf("NATS connection timeout: %w", err)
		}

		st, err := store.NewKVStore(ctx, client, cfg.Storage.Bucket, opts...)
		if err != nil {
			return fmt.Errorf("open kv store: %w", err)
		}
		a.store = st

	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "app", "openStore",
			fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend))
	}

	a.logger.Info("Submission store ready", "backend", cfg.Storage.Backend)
	return nil
}

// run serves until ctx is cancelled, then shuts everything down
func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Form server listening", "addr", a.cfg.HTTP.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.WrapFatal(err, "app", "run", "serve forms")
		}
		return nil
	})
	if a.metricsServer != nil {
		g.Go(func() error {
			a.logger.Info("Metrics server listening", "address", a.metricsServer.Address())
			return a.metricsServer.Start()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("formflow shutdown complete")
	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown form server: %w", err))
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.close(ctx); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// close releases sessions, the store and the NATS connection
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
		a.metrics.RecordNATSStatus(false)
	}
	return stderrors.Join(errs...)
}
