package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ridepool/ridepool/internal/config"
	"github.com/ridepool/ridepool/internal/notification"
	"github.com/ridepool/ridepool/internal/postgres"
	redisx "github.com/ridepool/ridepool/internal/redis"
	postgresrepo "github.com/ridepool/ridepool/internal/repository/postgres"
	redisrepo "github.com/ridepool/ridepool/internal/repository/redis"
	"github.com/ridepool/ridepool/internal/scheduler"
	"github.com/ridepool/ridepool/internal/service"
	"github.com/ridepool/ridepool/internal/service/booking"
	httpgin "github.com/ridepool/ridepool/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	expiry     *scheduler.Scheduler
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewTripsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "rl", 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Initialize notifications
	notifier, err := notification.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
	}

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, notifier, logger, service.Config{
		Booking: booking.Config{},
	})

	// Initialize the expiry job

	expiry := scheduler.New(services.Booking, notifier, logger, scheduler.Config{
		Interval:   cfg.Expiry.Interval,
		PendingTTL: cfg.Expiry.PendingTTL,
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, expiry, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		expiry: expiry,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start the expiry job: one run immediately, then hourly
	a.expiry.Start(gCtx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down")
		a.expiry.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
