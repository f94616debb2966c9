package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"blast/internal/domain"
	"blast/internal/gateway"
	"blast/internal/observability"
	"blast/internal/store"
	"blast/internal/util"
)

type Store interface {
	GetBroadcast(ctx context.Context, id string) (store.Broadcast, bool, error)
	PauseBroadcast(ctx context.Context, id string, now time.Time) (bool, error)
	CancelBroadcast(ctx context.Context, id string, now time.Time) (bool, error)
	ClaimRun(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (bool, error)
	TouchProcessing(ctx context.Context, id string, now time.Time) error
	ListPendingRecipients(ctx context.Context, broadcastID string) ([]store.Recipient, error)
	FinalizeRecipient(ctx context.Context, in store.RecipientOutcome) (bool, error)
	IncrementSent(ctx context.Context, id string, now time.Time) error
	IncrementFailed(ctx context.Context, id string, now time.Time) error
	CountPending(ctx context.Context, broadcastID string) (int64, error)
	CompleteBroadcast(ctx context.Context, id string, now time.Time) (bool, error)
}

type Gateway interface {
	Ready() error
	SendText(ctx context.Context, phone, message string) (gateway.Result, error)
	SendImage(ctx context.Context, phone, imageURL, caption string) (gateway.Result, error)
	SendVideo(ctx context.Context, phone, videoURL, caption string) (gateway.Result, error)
	SendDocument(ctx context.Context, phone, documentURL string) (gateway.Result, error)
	SendActionButtons(ctx context.Context, phone, message string, buttons []domain.Button) (gateway.Result, error)
	SendReplyButtons(ctx context.Context, phone, message string, buttons []domain.Button) (gateway.Result, error)
	SendReplyButtonsImage(ctx context.Context, phone, message string, buttons []domain.Button, imageURL string) (gateway.Result, error)
	SendReplyButtonsVideo(ctx context.Context, phone, message string, buttons []domain.Button, videoURL string) (gateway.Result, error)
}

// Spawner detaches the send loop from the control call. The runtime only
// promises best-effort continuation; an interrupted loop is recovered by the
// scheduler's periodic resume, never by a special recovery path.
type Spawner interface {
	Go(fn func(ctx context.Context))
}

// GoSpawner runs loops as plain goroutines rooted in the process context.
type GoSpawner struct {
	Base context.Context
}

func (s GoSpawner) Go(fn func(ctx context.Context)) {
	ctx := s.Base
	if ctx == nil {
		ctx = context.Background()
	}
	go fn(ctx)
}

// Rand is the pseudo-random source behind variation picks and pacing jitter;
// tests inject a deterministic one.
type Rand interface {
	Intn(n int) int
}

var (
	ErrNotFound          = errors.New("broadcast not found")
	ErrInvalidTransition = errors.New("broadcast is in a terminal state")
	ErrNotRunning        = errors.New("broadcast is not running")
)

// Dispatcher drives one broadcast's pending recipients to completion while
// honoring pacing and cooperative pause/cancel. Recipients are processed
// strictly sequentially within a job; jobs run as independent loops.
type Dispatcher struct {
	Store   Store
	Gateway Gateway
	Spawn   Spawner
	Rand    Rand
	Sleep   func(ctx context.Context, d time.Duration) error

	// Limiter caps gateway calls across concurrently running jobs; Breaker
	// fails fast while the gateway itself is down.
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	// StaleAfter is how old the heartbeat must be before a running job can be
	// re-claimed.
	StaleAfter time.Duration
	// MediaFollowupDelay separates the two sends of a media+buttons or
	// document+text delivery.
	MediaFollowupDelay time.Duration
	CountryCode        string
	NameFallback       string
	// ProgressEvery is how often (in recipients) the loop logs progress and
	// refreshes the heartbeat.
	ProgressEvery int
}

func New(st Store, gw Gateway, spawn Spawner) *Dispatcher {
	return &Dispatcher{
		Store:              st,
		Gateway:            gw,
		Spawn:              spawn,
		Rand:               rand.New(rand.NewSource(time.Now().UnixNano())),
		Sleep:              sleepCtx,
		StaleAfter:         5 * time.Minute,
		MediaFollowupDelay: 2 * time.Second,
		CountryCode:        util.DefaultCountryCode,
		NameFallback:       "amigo(a)",
		ProgressEvery:      10,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handle is the single control entry point. It never blocks on the campaign:
// start/resume spawn the send loop and return an acknowledgement.
func (d *Dispatcher) Handle(ctx context.Context, action domain.Action, broadcastID string) (string, error) {
	// Configuration fault fails the whole call before any state change.
	if err := d.Gateway.Ready(); err != nil {
		return "", err
	}

	job, found, err := d.Store.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}

	now := util.NowUTC()

	switch action {
	case domain.ActionPause:
		paused, err := d.Store.PauseBroadcast(ctx, broadcastID, now)
		if err != nil {
			return "", err
		}
		if !paused {
			return "", ErrNotRunning
		}
		observability.ControlCalls.WithLabelValues(string(action), "ok").Inc()
		return "broadcast paused", nil

	case domain.ActionCancel:
		cancelled, err := d.Store.CancelBroadcast(ctx, broadcastID, now)
		if err != nil {
			return "", err
		}
		if !cancelled {
			return "", ErrInvalidTransition
		}
		observability.ControlCalls.WithLabelValues(string(action), "ok").Inc()
		return "broadcast cancelled", nil

	case domain.ActionStart, domain.ActionResume:
		if job.Status == string(domain.StatusCompleted) || job.Status == string(domain.StatusCancelled) {
			return "", ErrInvalidTransition
		}
		claimed, err := d.Store.ClaimRun(ctx, broadcastID, now, d.StaleAfter)
		if err != nil {
			return "", err
		}
		if !claimed {
			// A fresh heartbeat means another loop owns this job; the
			// scheduler's re-invocation must be a no-op, not a second loop.
			observability.ControlCalls.WithLabelValues(string(action), "noop").Inc()
			return "broadcast is already being processed", nil
		}

		pending, err := d.Store.ListPendingRecipients(ctx, broadcastID)
		if err != nil {
			return "", err
		}

		d.Spawn.Go(func(loopCtx context.Context) {
			d.runLoop(loopCtx, broadcastID, pending)
		})
		observability.ControlCalls.WithLabelValues(string(action), "ok").Inc()
		return "broadcast processing started", nil

	default:
		return "", domain.ErrUnknownAction
	}
}

// runLoop processes pending recipients strictly in order. The job status
// re-read at the top of each iteration is the only cancellation point, so a
// single send is never interrupted mid-flight.
func (d *Dispatcher) runLoop(ctx context.Context, broadcastID string, pending []store.Recipient) {
	slog.Info("broadcast loop started", "broadcast_id", broadcastID, "pending", len(pending))

	reason := "exhausted"
	processed := 0

loop:
	for i, rcpt := range pending {
		cur, found, err := d.Store.GetBroadcast(ctx, broadcastID)
		if err != nil || !found {
			slog.Error("broadcast status check failed", "broadcast_id", broadcastID, "err", err)
			reason = "status check failed"
			break loop
		}
		if cur.Status != string(domain.StatusRunning) {
			reason = cur.Status
			break loop
		}

		d.processRecipient(ctx, cur, rcpt)
		processed++

		if d.ProgressEvery > 0 && processed%d.ProgressEvery == 0 {
			if err := d.Store.TouchProcessing(ctx, broadcastID, util.NowUTC()); err != nil {
				slog.Error("broadcast heartbeat failed", "broadcast_id", broadcastID, "err", err)
			}
			slog.Info("broadcast progress", "broadcast_id", broadcastID, "processed", processed, "total", len(pending))
		}

		// No delay after the final recipient.
		if i < len(pending)-1 {
			if err := d.Sleep(ctx, d.pacingDelay(cur)); err != nil {
				// Process shutdown: job stays running and the scheduler
				// resumes it later.
				reason = "interrupted"
				break loop
			}
		}
	}

	remaining, err := d.Store.CountPending(ctx, broadcastID)
	if err != nil {
		slog.Error("broadcast pending recount failed", "broadcast_id", broadcastID, "err", err)
		slog.Info("broadcast loop finished", "broadcast_id", broadcastID, "reason", reason, "processed", processed)
		return
	}
	if remaining == 0 {
		completed, err := d.Store.CompleteBroadcast(ctx, broadcastID, util.NowUTC())
		if err != nil {
			slog.Error("broadcast completion failed", "broadcast_id", broadcastID, "err", err)
		} else if completed {
			observability.BroadcastsCompleted.Inc()
			slog.Info("broadcast completed", "broadcast_id", broadcastID)
		}
	}
	slog.Info("broadcast loop finished",
		"broadcast_id", broadcastID,
		"reason", reason,
		"processed", processed,
		"remaining", remaining,
	)
}

// processRecipient performs one delivery attempt and records the outcome
// immediately: recipient row first, then the job counter. Two separate writes;
// a crash between them under-counts but never double-sends.
func (d *Dispatcher) processRecipient(ctx context.Context, job store.Broadcast, rcpt store.Recipient) {
	outcome := d.deliver(ctx, job, rcpt)
	now := util.NowUTC()

	if outcome.delivered {
		ok, err := d.Store.FinalizeRecipient(ctx, store.RecipientOutcome{
			ID:            rcpt.ID,
			Status:        string(domain.RecipientSent),
			VariationUsed: outcome.variation,
			Now:           now,
		})
		if err != nil {
			// The message went out but bookkeeping failed; the row stays
			// pending and an external retry re-sends. Accepted at-least-once
			// risk; do not stall the rest of the list.
			slog.Error("recipient finalize failed", "recipient_id", rcpt.ID, "broadcast_id", job.ID, "err", err)
			return
		}
		if !ok {
			return
		}
		observability.RecipientOutcomes.WithLabelValues("sent").Inc()
		if err := d.Store.IncrementSent(ctx, job.ID, now); err != nil {
			slog.Error("sent counter update failed", "broadcast_id", job.ID, "err", err)
		}
		return
	}

	ok, err := d.Store.FinalizeRecipient(ctx, store.RecipientOutcome{
		ID:            rcpt.ID,
		Status:        string(domain.RecipientFailed),
		ErrorMessage:  outcome.errMsg,
		VariationUsed: outcome.variation,
		Now:           now,
	})
	if err != nil {
		slog.Error("recipient finalize failed", "recipient_id", rcpt.ID, "broadcast_id", job.ID, "err", err)
		return
	}
	if !ok {
		return
	}
	observability.RecipientOutcomes.WithLabelValues("failed").Inc()
	if err := d.Store.IncrementFailed(ctx, job.ID, now); err != nil {
		slog.Error("failed counter update failed", "broadcast_id", job.ID, "err", err)
	}
}

// pacingDelay draws uniformly from [min, max] seconds. The randomization
// avoids a detectable fixed cadence toward the gateway.
func (d *Dispatcher) pacingDelay(job store.Broadcast) time.Duration {
	min, max := job.IntervalMinSeconds, job.IntervalMaxSeconds
	if max < min {
		max = min
	}
	secs := min
	if max > min {
		secs = min + d.Rand.Intn(max-min+1)
	}
	return time.Duration(secs) * time.Second
}
