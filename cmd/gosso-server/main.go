package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brexis/gosso/pkg/broker"
	"github.com/brexis/gosso/pkg/config"
	"github.com/brexis/gosso/pkg/observability"
	"github.com/brexis/gosso/pkg/server"
	"github.com/brexis/gosso/pkg/session"
)

func main() {
	usersFile := flag.String("users-file", "users.yaml", "Path to the yaml account file")
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	logger.SetLevel(cfg.Observability.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store: shared redis in real deployments, memory for local runs.
	var sessions session.Store
	pingers := map[string]observability.Pinger{}
	if cfg.Session.RedisURL != "" {
		redisStore, err := session.NewRedisStore(cfg.Session.RedisURL, cfg.Session.TTL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisStore.Close()
		sessions = redisStore
		pingers["redis"] = redisStore
	} else {
		logger.Warn("no redis url configured, using in-memory sessions (single instance only)")
		sessions = session.NewMemoryStore(cfg.Session.TTL)
	}

	group, ctx := errgroup.WithContext(ctx)

	// Broker registry.
	var brokers broker.Store
	switch cfg.Registry.Driver {
	case config.RegistryPostgres:
		db, err := sql.Open("postgres", cfg.Registry.PostgresURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to open registry database")
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.WithError(err).Fatal("failed to reach registry database")
		}
		brokers, err = broker.NewSQLStore(db, broker.SQLStoreConfig{
			Table:        cfg.Registry.Table,
			IDColumn:     cfg.Registry.IDColumn,
			SecretColumn: cfg.Registry.SecretColumn,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to configure registry store")
		}
		pingers["postgres"] = observability.PingerFunc(db.PingContext)
	default:
		static, err := broker.NewStaticStoreFromFile(cfg.Registry.File)
		if err != nil {
			logger.WithError(err).Fatal("failed to load broker registry")
		}
		brokers = static

		if cfg.Registry.Watch {
			watcher, err := broker.NewWatcher(cfg.Registry.File, static, logger)
			if err != nil {
				logger.WithError(err).Fatal("failed to watch broker registry")
			}
			group.Go(func() error {
				err := watcher.Run(ctx)
				if err == context.Canceled {
					return nil
				}
				return err
			})
		}
	}

	users, err := loadUsersFile(*usersFile)
	if err != nil {
		logger.WithError(err).Fatal("failed to load users")
	}

	protocol, err := server.NewProtocol(server.Config{
		Brokers:       brokers,
		Sessions:      sessions,
		Users:         users,
		UsernameField: cfg.Server.UsernameField,
		Logger:        logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build protocol")
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	router := mux.NewRouter()
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	server.NewHandlers(protocol, logger, metrics).RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port so probes never contend with
	// protocol traffic.
	health := observability.NewHealthChecker(pingers)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("sso server listening")
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		apiServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("server exited")
	}
}
