package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/iliyamo/reservation-engine/internal/config"
	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/handler"
	"github.com/iliyamo/reservation-engine/internal/inventory"
	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/middleware"
	"github.com/iliyamo/reservation-engine/internal/notification"
	"github.com/iliyamo/reservation-engine/internal/payment"
	"github.com/iliyamo/reservation-engine/internal/queue"
	"github.com/iliyamo/reservation-engine/internal/realtime"
	"github.com/iliyamo/reservation-engine/internal/repository"
	"github.com/iliyamo/reservation-engine/internal/router"
	"github.com/iliyamo/reservation-engine/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := logging.New("api", cfg.LogLevel)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	// Redis backs presence, rate limiting, the response cache and the rate
	// table.  Without it each of those degrades instead of failing.
	rcfg := config.LoadRedisConfig()
	rdb := config.NewRedisClient(rcfg)
	var (
		presence   realtime.Presence = realtime.Offline{}
		registry   handler.PresenceRegistry
		rateCache  payment.RateCache = payment.NewMemoryRateCache()
		limiter    echo.MiddlewareFunc
		respCache  echo.MiddlewareFunc
	)
	if rdb != nil {
		defer rdb.Close()
		p := realtime.NewRedisPresence(rdb, rcfg.PresenceTTL)
		presence, registry = p, p
		rateCache = payment.NewRedisRateCache(rdb)
		limiter = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
		respCache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	} else {
		logger.Warnf("redis unavailable: presence, rate limiting and caching disabled")
	}

	pcfg := config.LoadPaymentConfig()
	gateway := payment.NewGateway(payment.Config{
		BaseURL:        pcfg.BaseURL,
		SecretKey:      pcfg.SecretKey,
		Timeout:        pcfg.Timeout,
		MaxRetries:     uint64(pcfg.MaxRetries),
		InitialBackoff: pcfg.InitialBackoff,
	}, logging.New("payment", cfg.LogLevel))
	rates := payment.NewRateProvider(payment.RateConfig{
		BaseURL: pcfg.RatesBaseURL,
		APIKey:  pcfg.RatesAPIKey,
		TTL:     pcfg.RatesTTL,
	}, rateCache, logging.New("rates", cfg.LogLevel))

	var (
		emitter     realtime.Emitter = realtime.Discard{}
		settlements service.SettlementQueue
	)
	if cfg.BrokerURL != "" {
		emitter = realtime.NewAMQPEmitter(cfg.BrokerURL, logging.New("realtime", cfg.LogLevel))
		settlements = queue.NewSettlementPublisher(cfg.BrokerURL, logging.New("settlement", cfg.LogLevel))
	} else {
		logger.Warnf("no broker configured: real-time events and settlement retries disabled")
	}

	notes := notification.NewService(repository.NewNotificationRepo(db), presence, emitter, logging.New("notification", cfg.LogLevel))
	accounts := repository.NewAccountRepo(db)
	reservations := service.NewReservationService(service.Deps{
		Reservations: repository.NewReservationRepo(db),
		Accounts:     accounts,
		Properties:   repository.NewPropertyRepo(db),
		Inventory:    inventory.NewLedger(repository.NewUnitRepo(db), logging.New("inventory", cfg.LogLevel)),
		Gateway:      gateway,
		Notifier:     notes,
		Settlements:  settlements,
		Tx:           database.NewSQLTransactor(db, logging.New("tx", cfg.LogLevel)),
	}, logging.New("reservation", cfg.LogLevel))
	accountSvc := service.NewAccountService(accounts, gateway, logging.New("account", cfg.LogLevel))

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	router.Register(e, router.Handlers{
		Health:        handler.Health(db),
		Reservations:  handler.NewReservationHandler(reservations),
		Properties:    handler.NewPropertyHandler(reservations),
		Payments:      handler.NewPaymentHandler(accountSvc, gateway, rates),
		Accounts:      handler.NewAccountHandler(accountSvc),
		Notifications: handler.NewNotificationHandler(notes, registry),
	}, router.Middlewares{RateLimit: limiter, Cache: respCache}, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	errc := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
