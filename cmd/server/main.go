package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"turnos-web/internal/app"
	"turnos-web/internal/booking"
	"turnos-web/internal/cache"
	"turnos-web/internal/calendar"
	"turnos-web/internal/config"
	"turnos-web/internal/domain"
	"turnos-web/internal/logging"
	"turnos-web/internal/server"
	"turnos-web/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Production())
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	domain.SetInstantLocation(cfg.BookingLocation)

	var durable session.DurableStore = session.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to db: %w", err)
		}
		defer pool.Close()
		pg, err := session.NewPostgresStore(ctx, pool)
		if err != nil {
			return fmt.Errorf("session store: %w", err)
		}
		durable = pg
		logger.Info("sessions persisted in postgres")
	}

	var store cache.Store = cache.NewMemory()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		store = cache.NewRedis(rdb)
		logger.Info("views cached in redis", zap.String("addr", cfg.RedisAddr))
	}

	var publisher *calendar.Publisher
	if oauth := calendar.OAuthConfig(calendar.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}); oauth != nil {
		publisher = calendar.NewPublisher(oauth, logger)
		logger.Info("google calendar publishing enabled")
	}

	registry := app.NewRegistry(app.Options{
		BackendURL:   cfg.BackendURL,
		HTTPClient:   &http.Client{Timeout: cfg.BackendTimeout},
		Durable:      durable,
		Cache:        store,
		CacheTTL:     cfg.CacheTTL,
		ExpiredDelay: cfg.ExpiredLogoutDelay,
		MissingDelay: cfg.MissingTokenRedirectWait,
		Booking: booking.Config{
			WindowDays: cfg.BookingWindowDays,
			Location:   cfg.BookingLocation,
		},
		Calendar: publisher,
		Log:      logger,
	})
	go registry.RunSweeper(ctx, 10*time.Minute, 12*time.Hour)

	a := &app.App{
		Registry:      registry,
		Cache:         store,
		CacheTTL:      cfg.CacheTTL,
		Calendar:      publisher,
		Log:           logger,
		SecureCookies: cfg.Production(),
		RateLimitRPM:  cfg.RateLimitPerMinute,
		CORSOrigins:   cfg.CORSOrigins,
	}

	logger.Info("starting",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("backend", cfg.BackendURL),
		zap.String("env", cfg.Env))
	return server.Run(ctx, cfg.HTTPAddr, a.Router(), cfg.ShutdownTimeout, logger)
}
