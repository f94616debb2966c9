package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"blast/internal/config"
	"blast/internal/dispatch"
	"blast/internal/gateway"
	"blast/internal/httpserver"
	"blast/internal/logging"
	"blast/internal/observability"
	"blast/internal/service"
	"blast/internal/store/pg"
	"blast/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	store := pg.New(db)

	gwTimeout, err := time.ParseDuration(cfg.GatewayTimeout)
	if err != nil {
		slog.Error("invalid GATEWAY_TIMEOUT", "err", err)
		os.Exit(1)
	}
	staleAfter, err := time.ParseDuration(cfg.StaleRunAfter)
	if err != nil {
		slog.Error("invalid STALE_RUN_AFTER", "err", err)
		os.Exit(1)
	}

	gw := &gateway.Client{
		InstanceID: cfg.GatewayInstanceID,
		Token:      cfg.GatewayToken,
		BaseURL:    cfg.GatewayBaseURL,
		HTTP:       &http.Client{Timeout: gwTimeout},
	}

	dispatcher := dispatch.New(store, gw, dispatch.GoSpawner{Base: ctx})
	dispatcher.Limiter = rate.NewLimiter(rate.Limit(cfg.GatewayRPS), cfg.GatewayBurst)
	dispatcher.Breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 8 },
	})
	dispatcher.StaleAfter = staleAfter
	dispatcher.CountryCode = cfg.DefaultCountryCode
	dispatcher.NameFallback = cfg.NameFallback

	svc := &service.BroadcastService{Store: store}

	s := httpserver.New()
	api := &httpserver.API{
		Svc:            svc,
		Dispatcher:     dispatcher,
		BroadcastIDGen: util.NewBroadcastID,
		RecipientIDGen: util.NewRecipientID,
	}
	api.Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	handler := httpserver.Logging(httpserver.Metrics(observability.APIRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}
