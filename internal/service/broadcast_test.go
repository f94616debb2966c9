package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"blast/internal/domain"
	"blast/internal/store"
)

type fakeStore struct {
	broadcasts map[string]store.Broadcast
	recipients []store.Recipient
	inserted   []store.BroadcastInsert
}

func newFakeStore() *fakeStore {
	return &fakeStore{broadcasts: map[string]store.Broadcast{}}
}

func (f *fakeStore) InsertBroadcast(ctx context.Context, in store.BroadcastInsert) error {
	f.inserted = append(f.inserted, in)
	f.broadcasts[in.ID] = store.Broadcast{
		ID:          in.ID,
		Message:     in.Message,
		MediaKind:   in.MediaKind,
		MediaURL:    in.MediaURL,
		ButtonsJSON: in.ButtonsJSON,
		Status:      in.Status,
		CreatedAt:   in.Now,
	}
	return nil
}

func (f *fakeStore) InsertRecipients(ctx context.Context, ins []store.RecipientInsert) error {
	for _, in := range ins {
		f.recipients = append(f.recipients, store.Recipient{
			ID:          in.ID,
			BroadcastID: in.BroadcastID,
			Phone:       in.Phone,
			Name:        in.Name,
			Status:      "pending",
			CreatedAt:   in.Now,
		})
	}
	return nil
}

func (f *fakeStore) GetBroadcast(ctx context.Context, id string) (store.Broadcast, bool, error) {
	b, ok := f.broadcasts[id]
	return b, ok, nil
}

func (f *fakeStore) LedgerStats(ctx context.Context, broadcastID string) (store.Stats, error) {
	var s store.Stats
	for _, r := range f.recipients {
		if r.BroadcastID == broadcastID {
			s.Total++
			s.Pending++
		}
	}
	return s, nil
}

func (f *fakeStore) ListRecipients(ctx context.Context, broadcastID, status string, limit int) ([]store.Recipient, error) {
	var out []store.Recipient
	for _, r := range f.recipients {
		if r.BroadcastID == broadcastID && (status == "" || r.Status == status) {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestCreateBroadcastPersistsShape(t *testing.T) {
	fs := newFakeStore()
	svc := &BroadcastService{Store: fs}
	now := time.Now().UTC()

	req := domain.CreateBroadcastRequest{
		Message: "Oi {{name}}",
		Media:   &domain.Media{Kind: domain.MediaImage, URL: "https://cdn/x.png"},
		Buttons: []domain.Button{
			{Kind: domain.ButtonURL, Label: "Open", Value: "https://example.com"},
		},
		IntervalMinSeconds: 3,
		IntervalMaxSeconds: 8,
	}
	resp, err := svc.CreateBroadcast(context.Background(), req, "bct_1", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.BroadcastID != "bct_1" || resp.Status != "draft" {
		t.Fatalf("unexpected response %+v", resp)
	}

	in := fs.inserted[0]
	if in.MediaKind != "image" || in.MediaURL != "https://cdn/x.png" {
		t.Fatalf("media not persisted: %+v", in)
	}
	var buttons []domain.Button
	if err := json.Unmarshal(in.ButtonsJSON, &buttons); err != nil || len(buttons) != 1 {
		t.Fatalf("buttons not persisted: %s", in.ButtonsJSON)
	}

	// the stored row round-trips back through the view
	view, found, err := svc.GetBroadcast(context.Background(), "bct_1")
	if err != nil || !found {
		t.Fatalf("get: %v found=%v", err, found)
	}
	if view.Media == nil || view.Media.Kind != domain.MediaImage {
		t.Fatalf("media lost in view: %+v", view)
	}
	if len(view.Buttons) != 1 || view.Buttons[0].Label != "Open" {
		t.Fatalf("buttons lost in view: %+v", view.Buttons)
	}
}

func TestAddRecipientsRequiresExistingBroadcast(t *testing.T) {
	fs := newFakeStore()
	svc := &BroadcastService{Store: fs}

	req := domain.AddRecipientsRequest{Recipients: []domain.RecipientInput{{Phone: "11987654321", Name: "Maria"}}}
	if _, err := svc.AddRecipients(context.Background(), "nope", req, func() string { return "rcp_1" }, time.Now()); !errors.Is(err, ErrBroadcastNotFound) {
		t.Fatalf("expected ErrBroadcastNotFound, got %v", err)
	}

	fs.broadcasts["bct_1"] = store.Broadcast{ID: "bct_1", Status: "draft"}
	n := 0
	added, err := svc.AddRecipients(context.Background(), "bct_1", domain.AddRecipientsRequest{
		Recipients: []domain.RecipientInput{{Phone: "1"}, {Phone: "2"}},
	}, func() string { n++; return "rcp_" + string(rune('0'+n)) }, time.Now())
	if err != nil || added != 2 {
		t.Fatalf("add: %v added=%d", err, added)
	}
	if len(fs.recipients) != 2 || fs.recipients[0].Status != "pending" {
		t.Fatalf("recipients not stored pending: %+v", fs.recipients)
	}
}
