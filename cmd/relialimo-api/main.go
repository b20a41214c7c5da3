// README: Entry point; loads config, wires services, starts the HTTP server and farm-out automation.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"relialimo/internal/config"
	httptransport "relialimo/internal/http"
	"relialimo/internal/http/handlers"
	"relialimo/internal/infra"
	"relialimo/internal/maps"
	"relialimo/internal/modules/directory"
	"relialimo/internal/modules/driver"
	"relialimo/internal/modules/farmout"
	"relialimo/internal/modules/reservation"
)

func main() {
	cfg, err := config.Load()
	logger := infra.NewLogger(cfg.LogLevel, "relialimo-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.AuthEnabled() {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("firebase init")
		}
	} else {
		logger.Warn().Msg("RELIALIMO_FIREBASE_PROJECT_ID not set; API is unauthenticated")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer dbPool.Close()
	if err := infra.Migrate(ctx, dbPool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	var geocoder reservation.Geocoder
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocodeService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			logger.Fatal().Err(err).Msg("maps client")
		}
		geocoder = g
	}

	reservationSvc := reservation.NewService(reservation.NewStore(dbPool), geocoder, logger)
	driverSvc := driver.NewService(driver.NewStore(dbPool))
	directorySvc := directory.NewService(directory.NewStore(dbPool), logger)

	redisStore := farmout.NewRedisStore(redisClient, cfg.Farmout.SettingsKey)
	activity := farmout.NewActivityStore(dbPool, logger)
	outbox := farmout.NewEscalationOutbox(dbPool, logger, cfg.Farmout.StepTimeout)

	farmoutSvc := farmout.NewService(farmout.Deps{
		Reservations: reservationSvc,
		Drivers:      driverSvc,
		Directory:    directorySvc,
		Activity:     activity,
		Settings:     redisStore,
		Ledger:       redisStore,
		Log:          logger,
		StepTimeout:  cfg.Farmout.StepTimeout,
	})
	defer farmoutSvc.Close()

	settings := farmoutSvc.LoadSettings(ctx)
	logger.Info().
		Int("dispatch_interval_minutes", settings.DispatchIntervalMinutes).
		Int("recipients", len(settings.Recipients)).
		Msg("farm-out settings loaded")
	farmoutSvc.OnEscalation(outbox.Consume)
	reservationSvc.Subscribe(farmoutSvc.HandleReservationEvent)
	if err := farmoutSvc.Bootstrap(ctx); err != nil {
		logger.Error().Err(err).Msg("farm-out bootstrap")
	}

	srv := httptransport.NewServer(httptransport.ServerDeps{
		Reservations: reservationSvc,
		Drivers:      driverSvc,
		Farmout:      farmoutSvc,
		Activity:     activity,
		Verifier:     verifier,
		Health: map[string]handlers.Pinger{
			"postgres": dbPool,
			"redis":    redisPinger(redisClient),
		},
		Log:         logger,
		CORSAllowed: cfg.CORSAllowed,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           http.TimeoutHandler(srv.Routes(), cfg.HTTP.RequestTimeout, "request timeout"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
	}()

	logger.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server")
	}
	logger.Info().Msg("shut down")
}

func redisPinger(c *redis.Client) handlers.PingFunc {
	return func(ctx context.Context) error {
		return c.Ping(ctx).Err()
	}
}
