package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/doctor-appointment-booking/internal/api"
	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/availability"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/db"
	"github.com/hackgods/doctor-appointment-booking/internal/logging"
	"github.com/hackgods/doctor-appointment-booking/internal/notification"
	"github.com/hackgods/doctor-appointment-booking/internal/payment"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Init("api-server", cfg.Env, cfg.LogLevel)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCtx = logger.WithContext(rootCtx)

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	if cfg.AutoMigrate {
		n, err := db.NewMigrator(pgPool).Up(rootCtx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		logger.Info().Int("applied", n).Msg("migrations up to date")
	}

	// Connect Redis
	rdb, err := redisclient.Connect(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	health := api.NewHealthHandler(cfg.Env, cfg.Version).
		Require("postgres", pgPool.Ping).
		Optional("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	notifier, closeNotifier := buildNotifier(cfg, pgPool, health)
	defer closeNotifier()

	var payments appointment.CheckoutGateway
	if cfg.StripeSecretKey != "" {
		payments = payment.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, checkout disabled")
	}

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewDoctorLocker(rdb, cfg.LockTTL, cfg.LockWait)
	svc := appointment.NewService(repo, locker, notifier, payments, cfg)
	calendars := availability.NewManager(availability.NewPgStore(pgPool))

	router := api.NewRouter(api.RouterConfig{
		Bookings:     svc,
		Calendars:    calendars,
		Health:       health,
		JWTSecret:    cfg.JWTSecret,
		RateLimitRPS: cfg.RateLimitRPS,
		CORSOrigins:  cfg.CORSOrigins,
	})
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set, trusting " + api.UserIDHeader + " header")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func buildNotifier(cfg config.Config, pgPool *pgxpool.Pool, health *api.HealthHandler) (appointment.Notifier, func()) {
	if cfg.NotifyTransport != config.NotifyAMQP {
		return notification.NewPgNotifier(pgPool), func() {}
	}

	n, err := notification.DialAMQP(cfg.RabbitMQURL, cfg.NotifyQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	health.Optional("rabbitmq", n.Ping)
	log.Info().Str("queue", cfg.NotifyQueue).Msg("connected to RabbitMQ")

	return n, func() {
		if err := n.Close(); err != nil {
			log.Error().Err(err).Msg("error closing rabbitmq")
		}
	}
}
