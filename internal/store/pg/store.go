package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"blast/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InsertBroadcast(ctx context.Context, in store.BroadcastInsert) error {
	vars, _ := json.Marshal(in.MessageVariations)
	buttons := in.ButtonsJSON
	if len(buttons) == 0 {
		buttons = []byte("[]")
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO broadcasts (id, message, message_variations, media_kind, media_url, buttons,
		                        interval_min_seconds, interval_max_seconds, status,
		                        sent_count, failed_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,0,$10,$10)
	`, in.ID, in.Message, vars, nullIfEmpty(in.MediaKind), nullIfEmpty(in.MediaURL), buttons,
		in.IntervalMinSeconds, in.IntervalMaxSeconds, in.Status, in.Now)
	return err
}

func (s *Store) InsertRecipients(ctx context.Context, ins []store.RecipientInsert) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, in := range ins {
		if _, err := tx.Exec(ctx, `
			INSERT INTO broadcast_recipients (id, broadcast_id, phone, name, status, created_at)
			VALUES ($1,$2,$3,$4,'pending',$5)
		`, in.ID, in.BroadcastID, in.Phone, in.Name, in.Now); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetBroadcast(ctx context.Context, id string) (store.Broadcast, bool, error) {
	var b store.Broadcast
	var varsJSON []byte
	row := s.DB.QueryRow(ctx, `
		SELECT id, message, message_variations, COALESCE(media_kind,''), COALESCE(media_url,''), buttons,
		       interval_min_seconds, interval_max_seconds, status, sent_count, failed_count,
		       started_at, completed_at, last_processing_at, created_at, updated_at
		FROM broadcasts WHERE id=$1
	`, id)
	err := row.Scan(&b.ID, &b.Message, &varsJSON, &b.MediaKind, &b.MediaURL, &b.ButtonsJSON,
		&b.IntervalMinSeconds, &b.IntervalMaxSeconds, &b.Status, &b.SentCount, &b.FailedCount,
		&b.StartedAt, &b.CompletedAt, &b.LastProcessingAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Broadcast{}, false, nil
		}
		return store.Broadcast{}, false, err
	}
	_ = json.Unmarshal(varsJSON, &b.MessageVariations)
	return b, true, nil
}

// PauseBroadcast is cooperative: it only flips the status; the running loop
// observes it on its next per-recipient check.
func (s *Store) PauseBroadcast(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE broadcasts SET status='paused', updated_at=$2 WHERE id=$1 AND status='running'
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) CancelBroadcast(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE broadcasts SET status='cancelled', completed_at=$2, updated_at=$2
		WHERE id=$1 AND status NOT IN ('completed','cancelled')
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ClaimRun attempts to take ownership of a broadcast's send loop. A draft or
// paused job is always claimable; a running one only when its
// last_processing_at heartbeat has gone stale, so the scheduler's periodic
// resume cannot race a loop that is still making progress.
func (s *Store) ClaimRun(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (bool, error) {
	staleBefore := now.Add(-staleAfter)
	ct, err := s.DB.Exec(ctx, `
		UPDATE broadcasts
		SET status='running', last_processing_at=$2, started_at=COALESCE(started_at,$2), updated_at=$2
		WHERE id=$1 AND (status IN ('draft','paused')
		              OR (status='running' AND (last_processing_at IS NULL OR last_processing_at < $3)))
	`, id, now, staleBefore)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// TouchProcessing refreshes the heartbeat so the stale-run sweeper leaves a
// healthy loop alone.
func (s *Store) TouchProcessing(ctx context.Context, id string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE broadcasts SET last_processing_at=$2, updated_at=$2 WHERE id=$1
	`, id, now)
	return err
}

func (s *Store) ListPendingRecipients(ctx context.Context, broadcastID string) ([]store.Recipient, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, broadcast_id, phone, COALESCE(name,''), status, created_at
		FROM broadcast_recipients
		WHERE broadcast_id=$1 AND status='pending'
		ORDER BY created_at, id
	`, broadcastID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Recipient
	for rows.Next() {
		var r store.Recipient
		if err := rows.Scan(&r.ID, &r.BroadcastID, &r.Phone, &r.Name, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FinalizeRecipient records the outcome exactly once: the pending guard means
// a terminal row can never revert or be overwritten.
func (s *Store) FinalizeRecipient(ctx context.Context, in store.RecipientOutcome) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE broadcast_recipients
		SET status=$2, sent_at=$3, error_message=$4, variation_used=$5
		WHERE id=$1 AND status='pending'
	`, in.ID, in.Status, in.Now, nullIfEmpty(in.ErrorMessage), in.VariationUsed)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) IncrementSent(ctx context.Context, id string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE broadcasts SET sent_count=sent_count+1, last_processing_at=$2, updated_at=$2 WHERE id=$1
	`, id, now)
	return err
}

func (s *Store) IncrementFailed(ctx context.Context, id string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE broadcasts SET failed_count=failed_count+1, last_processing_at=$2, updated_at=$2 WHERE id=$1
	`, id, now)
	return err
}

func (s *Store) CountPending(ctx context.Context, broadcastID string) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM broadcast_recipients WHERE broadcast_id=$1 AND status='pending'
	`, broadcastID).Scan(&n)
	return n, err
}

// CompleteBroadcast transitions running -> completed. The status guard keeps a
// loop that was paused or cancelled mid-exhaustion from overwriting that state.
func (s *Store) CompleteBroadcast(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE broadcasts SET status='completed', completed_at=$2, updated_at=$2
		WHERE id=$1 AND status='running'
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ListStaleRunning returns running broadcasts whose heartbeat is older than
// the cutoff: the signal that a host interruption orphaned the loop.
func (s *Store) ListStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM broadcasts
		WHERE status='running' AND (last_processing_at IS NULL OR last_processing_at < $1)
		ORDER BY last_processing_at NULLS FIRST
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) LedgerStats(ctx context.Context, broadcastID string) (store.Stats, error) {
	var st store.Stats
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status='pending'),
		       COUNT(*) FILTER (WHERE status='sent'),
		       COUNT(*) FILTER (WHERE status='failed')
		FROM broadcast_recipients WHERE broadcast_id=$1
	`, broadcastID).Scan(&st.Total, &st.Pending, &st.Sent, &st.Failed)
	return st, err
}

// ReconcileCounters re-derives sent_count/failed_count from the ledger. Heals
// drift from a crash between the recipient write and the counter write.
func (s *Store) ReconcileCounters(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE broadcasts b
		SET sent_count=l.sent, failed_count=l.failed, updated_at=$2
		FROM (
			SELECT COUNT(*) FILTER (WHERE status='sent') AS sent,
			       COUNT(*) FILTER (WHERE status='failed') AS failed
			FROM broadcast_recipients WHERE broadcast_id=$1
		) l
		WHERE b.id=$1 AND (b.sent_count <> l.sent OR b.failed_count <> l.failed)
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ListReconcilable returns broadcasts worth a reconciliation pass: anything
// not yet terminal, plus recently finished ones.
func (s *Store) ListReconcilable(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM broadcasts
		WHERE status IN ('running','paused') OR updated_at > $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListRecipients(ctx context.Context, broadcastID, status string, limit int) ([]store.Recipient, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, broadcast_id, phone, COALESCE(name,''), status, sent_at,
		       COALESCE(error_message,''), variation_used, created_at
		FROM broadcast_recipients
		WHERE broadcast_id=$1 AND ($2='' OR status=$2)
		ORDER BY created_at, id
		LIMIT $3
	`, broadcastID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Recipient
	for rows.Next() {
		var r store.Recipient
		if err := rows.Scan(&r.ID, &r.BroadcastID, &r.Phone, &r.Name, &r.Status, &r.SentAt,
			&r.ErrorMessage, &r.VariationUsed, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
