package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"blast/internal/domain"
	"blast/internal/observability"
	sqsqueue "blast/internal/queue/sqs"
	"blast/internal/util"
)

type Store interface {
	ListStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	ListReconcilable(ctx context.Context, since time.Time, limit int) ([]string, error)
	ReconcileCounters(ctx context.Context, id string, now time.Time) (bool, error)
}

type ControlQueue interface {
	EnqueueControl(ctx context.Context, cmd sqsqueue.ControlCommand) error
}

// Sweeper is the recovery mechanism for interrupted campaigns: any broadcast
// left running with a stale heartbeat gets a resume command re-enqueued. It
// also periodically re-derives job counters from the recipient ledger.
type Sweeper struct {
	Store Store
	Queue ControlQueue

	StaleAfter        time.Duration
	SweepBatch        int
	ReconcileLookback time.Duration

	cron *cron.Cron
}

// Start registers the cron entries and starts the scheduler. Stop it with the
// returned cron's context on shutdown.
func (s *Sweeper) Start(ctx context.Context, sweepSchedule, reconcileSchedule string) error {
	c := cron.New()

	if _, err := c.AddFunc(sweepSchedule, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	if _, err := c.AddFunc(reconcileSchedule, func() { s.Reconcile(ctx) }); err != nil {
		return err
	}

	c.Start()
	s.cron = c
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep enqueues resume for every running broadcast whose heartbeat has gone
// stale. Resume is no-op-safe on the dispatcher side, so over-enqueueing is
// harmless.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := util.NowUTC()
	ids, err := s.Store.ListStaleRunning(ctx, now.Add(-s.StaleAfter), s.SweepBatch)
	if err != nil {
		slog.Error("stale-run sweep query failed", "err", err)
		return
	}
	for _, id := range ids {
		cmd := sqsqueue.ControlCommand{
			Action:      string(domain.ActionResume),
			BroadcastID: id,
			RequestID:   "sweep-" + id + "-" + now.Format("200601021504"),
			EnqueuedAt:  now,
		}
		if err := s.Queue.EnqueueControl(ctx, cmd); err != nil {
			slog.Error("sweep resume enqueue failed", "broadcast_id", id, "err", err)
			continue
		}
		observability.SweeperResumes.Inc()
		slog.Info("stale broadcast re-queued for resume", "broadcast_id", id)
	}
}

// Reconcile heals sent_count/failed_count drift from the ledger for
// recently active broadcasts.
func (s *Sweeper) Reconcile(ctx context.Context) {
	now := util.NowUTC()
	ids, err := s.Store.ListReconcilable(ctx, now.Add(-s.ReconcileLookback), s.SweepBatch)
	if err != nil {
		slog.Error("reconcile query failed", "err", err)
		return
	}
	for _, id := range ids {
		fixed, err := s.Store.ReconcileCounters(ctx, id, now)
		if err != nil {
			slog.Error("counter reconcile failed", "broadcast_id", id, "err", err)
			continue
		}
		if fixed {
			observability.ReconcileFixes.Inc()
			slog.Warn("broadcast counters healed from ledger", "broadcast_id", id)
		}
	}
}
