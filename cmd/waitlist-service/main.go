package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"puppyspa/waitlist-service/internal/config"
	"puppyspa/waitlist-service/internal/httpapi"
	"puppyspa/waitlist-service/internal/hub"
	"puppyspa/waitlist-service/internal/logging"
	"puppyspa/waitlist-service/internal/relay"
	"puppyspa/waitlist-service/internal/store"
	"puppyspa/waitlist-service/internal/store/local"
	"puppyspa/waitlist-service/internal/store/postgres"
	"puppyspa/waitlist-service/internal/telemetry"
	"puppyspa/waitlist-service/internal/waitlist"
)

const serviceName = "waitlist-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup(ctx, serviceName, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	service := waitlist.NewService(st, waitlist.Options{
		Timeout:     cfg.OperationTimeout,
		SearchLimit: cfg.SearchLimit,
		Location:    cfg.Location,
		Logger:      logger,
	})
	h := hub.New(logger)

	publishers := []relay.Publisher{relay.NewHubPublisher(h)}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := relay.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("close kafka writer", zap.Error(err))
			}
		}()
		publishers = append(publishers, kafkaPublisher)
		logger.Info("kafka relay enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	eventRelay := relay.New(st, relay.Config{
		PollInterval: cfg.RelayPollInterval,
		BatchSize:    cfg.RelayBatchSize,
		Timeout:      cfg.OperationTimeout,
		Since:        time.Now(),
	}, logger, publishers...)

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/realtime/", hub.NewSockJSHandler("/realtime", h))
	mux.Handle("/", httpapi.NewHandler(service).Routes())

	handler := otelhttp.NewHandler(
		httpapi.LoggingMiddleware(logger, limiter.Middleware(httpapi.AuthMiddleware(cfg.StaffToken, mux))),
		serviceName,
	)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.StoreBackend),
			zap.String("timezone", cfg.Location.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return eventRelay.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.WaitingListStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			logger.Warn("database not reachable yet", zap.Error(err))
		}
		return postgres.NewStore(pool), pool.Close, nil
	default:
		st, err := local.Open(cfg.LocalStorePath, local.Options{})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using local store", zap.String("path", st.Path()))
		return st, func() {}, nil
	}
}
