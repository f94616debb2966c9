package service

import (
	"context"
	"encoding/json"
	"time"

	"blast/internal/domain"
	"blast/internal/store"
)

type Store interface {
	InsertBroadcast(ctx context.Context, in store.BroadcastInsert) error
	InsertRecipients(ctx context.Context, ins []store.RecipientInsert) error
	GetBroadcast(ctx context.Context, id string) (store.Broadcast, bool, error)
	LedgerStats(ctx context.Context, broadcastID string) (store.Stats, error)
	ListRecipients(ctx context.Context, broadcastID, status string, limit int) ([]store.Recipient, error)
}

// BroadcastService covers the dashboard-facing surface: creating draft
// broadcasts, loading their recipient ledger, and the polling reads. Control
// flow lives in the dispatcher.
type BroadcastService struct {
	Store Store
}

func (s *BroadcastService) CreateBroadcast(ctx context.Context, req domain.CreateBroadcastRequest, id string, now time.Time) (domain.CreateResponse, error) {
	buttons, err := json.Marshal(req.Buttons)
	if err != nil {
		return domain.CreateResponse{}, err
	}

	in := store.BroadcastInsert{
		ID:                 id,
		Message:            req.Message,
		MessageVariations:  req.MessageVariations,
		ButtonsJSON:        buttons,
		IntervalMinSeconds: req.IntervalMinSeconds,
		IntervalMaxSeconds: req.IntervalMaxSeconds,
		Status:             string(domain.StatusDraft),
		Now:                now,
	}
	if req.Media != nil {
		in.MediaKind = string(req.Media.Kind)
		in.MediaURL = req.Media.URL
	}
	if err := s.Store.InsertBroadcast(ctx, in); err != nil {
		return domain.CreateResponse{}, err
	}
	return domain.CreateResponse{BroadcastID: id, Status: string(domain.StatusDraft)}, nil
}

func (s *BroadcastService) AddRecipients(ctx context.Context, broadcastID string, req domain.AddRecipientsRequest, idGen func() string, now time.Time) (int, error) {
	_, found, err := s.Store.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrBroadcastNotFound
	}

	ins := make([]store.RecipientInsert, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		ins = append(ins, store.RecipientInsert{
			ID:          idGen(),
			BroadcastID: broadcastID,
			Phone:       r.Phone,
			Name:        r.Name,
			Now:         now,
		})
	}
	if err := s.Store.InsertRecipients(ctx, ins); err != nil {
		return 0, err
	}
	return len(ins), nil
}

// BroadcastView is what the dashboard polls: the job plus ledger-derived stats.
type BroadcastView struct {
	domain.Broadcast
	Recipients store.Stats `json:"recipients"`
}

func (s *BroadcastService) GetBroadcast(ctx context.Context, id string) (BroadcastView, bool, error) {
	row, found, err := s.Store.GetBroadcast(ctx, id)
	if err != nil || !found {
		return BroadcastView{}, found, err
	}
	stats, err := s.Store.LedgerStats(ctx, id)
	if err != nil {
		return BroadcastView{}, false, err
	}
	return BroadcastView{Broadcast: toDomain(row), Recipients: stats}, true, nil
}

func (s *BroadcastService) ListRecipients(ctx context.Context, broadcastID, status string, limit int) ([]domain.Recipient, error) {
	rows, err := s.Store.ListRecipients(ctx, broadcastID, status, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Recipient{
			ID:            r.ID,
			BroadcastID:   r.BroadcastID,
			Phone:         r.Phone,
			Name:          r.Name,
			Status:        domain.RecipientStatus(r.Status),
			SentAt:        r.SentAt,
			ErrorMessage:  r.ErrorMessage,
			VariationUsed: r.VariationUsed,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out, nil
}

func toDomain(row store.Broadcast) domain.Broadcast {
	b := domain.Broadcast{
		ID:                 row.ID,
		Message:            row.Message,
		MessageVariations:  row.MessageVariations,
		IntervalMinSeconds: row.IntervalMinSeconds,
		IntervalMaxSeconds: row.IntervalMaxSeconds,
		Status:             domain.JobStatus(row.Status),
		SentCount:          row.SentCount,
		FailedCount:        row.FailedCount,
		StartedAt:          row.StartedAt,
		CompletedAt:        row.CompletedAt,
		LastProcessingAt:   row.LastProcessingAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.MediaKind != "" {
		b.Media = &domain.Media{Kind: domain.MediaKind(row.MediaKind), URL: row.MediaURL}
	}
	if len(row.ButtonsJSON) > 0 {
		_ = json.Unmarshal(row.ButtonsJSON, &b.Buttons)
	}
	return b
}
