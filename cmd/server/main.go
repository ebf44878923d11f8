// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/email"
	"github.com/codr1/courtbook/internal/ratelimit"
	"github.com/codr1/courtbook/internal/scheduler"
)

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config/app.yaml"
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier *email.Notifier
	bookingCfg := booking.Config{
		Horizon:     cfg.Horizon(),
		Location:    cfg.Location(),
		MaxAttempts: cfg.Booking.MaxAttempts,
	}
	if cfg.Email.Enabled {
		client, err := email.NewSESClient(ctx, cfg.Email)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize SES client")
		}
		notifier = email.NewNotifier(database.Queries, client, cfg.App.Name, cfg.Location())
		bookingCfg.Notifier = notifier
		log.Info().Str("region", cfg.Email.Region).Msg("Reservation emails enabled")
	}

	controller, err := booking.NewController(database, bookingCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create admission controller")
	}

	if cfg.Scheduler.Enabled {
		if err := scheduler.Init(); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize scheduler")
		}
		svc, err := scheduler.ServiceInstance()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load scheduler")
		}
		if err := scheduler.RegisterRetentionJob(svc, database, cfg.Scheduler.PruneCron, cfg.Scheduler.RetentionDays, cfg.Location()); err != nil {
			log.Fatal().Err(err).Msg("Failed to register retention job")
		}
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(&ratelimit.Config{
			MemberPerMinute: cfg.RateLimit.MemberPerMinute,
			IPPerMinute:     cfg.RateLimit.IPPerMinute,
			Burst:           cfg.RateLimit.Burst,
			TrustProxy:      cfg.RateLimit.TrustProxy,
		})
		defer limiter.Close()
	}

	server := newServer(cfg, database, controller, limiter)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("environment", cfg.App.Environment).Msg("Starting server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		if cfg.Scheduler.Enabled {
			if err := scheduler.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop scheduler")
			}
		}
		if notifier != nil {
			notifier.Wait()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
