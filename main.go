package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"qrcheckin-backend/checkin"
	"qrcheckin-backend/config"
	"qrcheckin-backend/handlers"
	"qrcheckin-backend/logging"
	"qrcheckin-backend/metrics"
	"qrcheckin-backend/migrations"
	"qrcheckin-backend/notify"
	"qrcheckin-backend/qrtoken"
	"qrcheckin-backend/store"
)

func connectToDatabase(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func connectToRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := connectToDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to database")

	if cfg.RunMigrations {
		if err := migrations.Up(ctx, pool); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	codec, err := qrtoken.New(cfg.QRSecret())
	if err != nil {
		return fmt.Errorf("qr codec: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db := store.NewPostgres(pool)
	deps := handlers.Dependencies{
		Store:         db,
		Codec:         codec,
		Publisher:     notify.Nop{},
		Metrics:       m,
		Gatherer:      reg,
		Logger:        logger,
		TokenTTL:      cfg.QRTokenTTL,
		EventLifetime: cfg.EventLifetime,
		Location:      cfg.StatsLocation(),
		CORSOrigins:   cfg.CORSOrigins,
		Limits: handlers.Limits{
			ScansPerMinute:       cfg.ScanRatePerMinute,
			EventsCreatedPerHour: cfg.CreateEventsPerHour,
		},
	}

	if cfg.RedisURL != "" {
		client, err := connectToRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		live := notify.NewRedis(client)
		deps.Publisher = live
		deps.Subscriber = live
		deps.HealthChecks = map[string]func(context.Context) error{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}
		logger.Info("live updates enabled")
	} else {
		logger.Warn("REDIS_URL not set, live updates disabled")
	}

	deps.CheckIns, err = checkin.New(db, db, codec,
		checkin.WithLogger(logger),
		checkin.WithMetrics(m),
		checkin.WithPublisher(deps.Publisher),
	)
	if err != nil {
		return err
	}
	deps.Stats, err = checkin.NewStats(db, cfg.StatsLocation(), nil)
	if err != nil {
		return err
	}

	// Request contexts end on shutdown so live streams return.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelRequests)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
