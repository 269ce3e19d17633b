package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/danielrichman/snowball-ticketing/internal/app"
	"github.com/danielrichman/snowball-ticketing/internal/clock"
	"github.com/danielrichman/snowball-ticketing/internal/config"
	"github.com/danielrichman/snowball-ticketing/internal/notify"
	"github.com/danielrichman/snowball-ticketing/internal/storage/postgres"
	transporthttp "github.com/danielrichman/snowball-ticketing/internal/transport/http"
	"github.com/danielrichman/snowball-ticketing/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logrus.New()
	cfg := config.Load(logger)
	logger.SetLevel(cfg.LogLevel)

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatalf("db ping: %v", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}

	tickets := postgres.NewTicketRepository(pool)
	settings := postgres.NewSettingsRepository(pool)
	users := postgres.NewUserRepository(pool)
	clk := clock.NewSystem()

	var allocOpts []app.AllocationServiceOption
	if cfg.ReservationTTL > 0 {
		allocOpts = append(allocOpts, app.WithReservationTTL(cfg.ReservationTTL))
	}
	allocSvc := app.NewAllocationService(tickets, settings, clk, logger, allocOpts...)
	finalizeSvc := app.NewFinalizeService(tickets, clk, logger)
	releaseSvc := app.NewReleaseService(tickets, clk, &notify.LogNotifier{Logger: logger}, logger)
	paymentSvc := app.NewPaymentService(tickets, users, clk, logger,
		cfg.BankSortCode, cfg.BankAccountNumber)
	settingsSvc := app.NewSettingsService(settings, logger)

	finaliseHandler := transporthttp.HandleFinaliseTicket(finalizeSvc, tickets)
	purgeHandler := transporthttp.HandlePurgeTicket(paymentSvc)
	balanceHandler := transporthttp.HandleUserBalance(paymentSvc)
	releaseHandler := transporthttp.HandleReleaseTickets(releaseSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/availability", transporthttp.HandleAvailability(allocSvc))
	mux.Handle("/counts", transporthttp.HandleCounts(allocSvc))
	mux.Handle("/prices", transporthttp.HandlePrices(allocSvc))
	mux.Handle("/tickets", transporthttp.HandleBuyTickets(allocSvc, users))
	mux.HandleFunc("/tickets/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/finalise"):
			finaliseHandler(w, r)
		case strings.HasSuffix(r.URL.Path, "/purge"):
			purgeHandler(w, r)
		default:
			transporthttp.NotFoundHandler().ServeHTTP(w, r)
		}
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/balance"):
			balanceHandler(w, r)
		case strings.HasSuffix(r.URL.Path, "/release"):
			releaseHandler(w, r)
		default:
			transporthttp.NotFoundHandler().ServeHTTP(w, r)
		}
	})
	mux.Handle("/admin/settings", transporthttp.HandleAdminSettings(settingsSvc))
	mux.Handle("/admin/settings/", transporthttp.HandleAdminSettings(settingsSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	logger.Infof("api listening on :%s", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("server shutdown error: %v", err)
	}
	logger.Info("server stopped")
}
