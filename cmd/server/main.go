// Command server runs the booking backend HTTP API.
//
// Startup order: env + config, logging, tracing, database, cache, mail, HTTP
// router, then a graceful-shutdown loop driven by SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	_ "github.com/danovmusic/go-booking-backend/docs"
	"github.com/danovmusic/go-booking-backend/internal/cache"
	"github.com/danovmusic/go-booking-backend/internal/config"
	httpapi "github.com/danovmusic/go-booking-backend/internal/http"
	"github.com/danovmusic/go-booking-backend/internal/notify"
	"github.com/danovmusic/go-booking-backend/internal/observability"
	"github.com/danovmusic/go-booking-backend/internal/repo"
	"github.com/danovmusic/go-booking-backend/internal/services"
	"github.com/danovmusic/go-booking-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless OTEL_ENABLED)
	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Database
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		log.Fatal().Err(err).Msg("gorm tracing plugin failed")
	}

	// Availability cache: Redis when configured, otherwise in-process.
	var store cache.Cache
	if cfg.RedisAddr != "" {
		store = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis cache")
	} else {
		store = cache.NewMemory()
	}

	// Mail: disabled without an SMTP host.
	var notifier services.Notifier
	if cfg.SMTP.Host != "" {
		notifier = &notify.Dispatcher{
			Mailer: &notify.SMTPMailer{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
			},
			// Studio alerts go to the From mailbox when no dedicated
			// address is configured.
			StudioEmail: sysutil.FirstNonEmpty(cfg.SMTP.StudioEmail, cfg.SMTP.From),
			BaseURL:     cfg.BaseURL,
		}
	} else {
		log.Warn().Msg("SMTP_HOST not set, booking mail disabled")
	}

	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set, admin surface is locked out")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, store, notifier, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("booking backend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("db close")
		}
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}
