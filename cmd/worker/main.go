package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"blast/internal/awsutil"
	"blast/internal/config"
	"blast/internal/dispatch"
	"blast/internal/domain"
	"blast/internal/gateway"
	"blast/internal/httpserver"
	"blast/internal/logging"
	"blast/internal/observability"
	sqsqueue "blast/internal/queue/sqs"
	"blast/internal/sched"
	"blast/internal/store/pg"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.ControlQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

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
	reconcileLookback, err := time.ParseDuration(cfg.ReconcileLookback)
	if err != nil {
		slog.Error("invalid RECONCILE_LOOKBACK", "err", err)
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

	producer := &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.ControlQueueURL}
	sweeper := &sched.Sweeper{
		Store:             store,
		Queue:             producer,
		StaleAfter:        staleAfter,
		SweepBatch:        cfg.SweepBatch,
		ReconcileLookback: reconcileLookback,
	}
	if err := sweeper.Start(ctx, cfg.SweepSchedule, cfg.ReconcileSchedule); err != nil {
		slog.Error("sweeper start failed", "err", err)
		os.Exit(1)
	}

	consumer := &sqsqueue.Consumer{
		SQS: sqsClient, QueueURL: cfg.ControlQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	// health server (liveness + readiness)
	s := httpserver.New()
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.ControlQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))

	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(s.Mux),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker consuming control commands", "queue_url", cfg.ControlQueueURL)
		pollErrCh <- consumer.Poll(ctx, func(ctx context.Context, cmd sqsqueue.ControlCommand) error {
			action, err := domain.ParseAction(cmd.Action)
			if err != nil {
				// unknown action is a poison message, not a retryable fault
				slog.Error("control command with unknown action", "action", cmd.Action, "broadcast_id", cmd.BroadcastID)
				return nil
			}
			msg, err := dispatcher.Handle(ctx, action, cmd.BroadcastID)
			if err != nil {
				if err == dispatch.ErrNotFound || err == dispatch.ErrInvalidTransition || err == dispatch.ErrNotRunning {
					// job state moved on; nothing to redrive
					slog.Info("control command dropped", "action", cmd.Action, "broadcast_id", cmd.BroadcastID, "reason", err.Error())
					return nil
				}
				return err
			}
			slog.Info("control command handled", "action", cmd.Action, "broadcast_id", cmd.BroadcastID, "result", msg)
			return nil
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}
