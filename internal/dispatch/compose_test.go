package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"blast/internal/domain"
	"blast/internal/store"
)

func replyButtons() []domain.Button {
	return []domain.Button{
		{Kind: domain.ButtonReply, Label: "Yes", Value: "yes"},
		{Kind: domain.ButtonReply, Label: "No", Value: "no"},
	}
}

func urlButtons() []domain.Button {
	return []domain.Button{{Kind: domain.ButtonURL, Label: "Open", Value: "https://example.com"}}
}

func media(kind domain.MediaKind) *domain.Media {
	return &domain.Media{Kind: kind, URL: "https://cdn.example.com/a"}
}

func TestRouteFor(t *testing.T) {
	cases := []struct {
		name    string
		buttons []domain.Button
		media   *domain.Media
		want    Route
	}{
		{"plain text", nil, nil, RouteText},
		{"image caption", nil, media(domain.MediaImage), RouteImageCaption},
		{"video caption", nil, media(domain.MediaVideo), RouteVideoCaption},
		{"document then text", nil, media(domain.MediaDocument), RouteDocumentThenText},
		{"action buttons", urlButtons(), nil, RouteActionButtons},
		{"action buttons with image", urlButtons(), media(domain.MediaImage), RouteMediaThenActionButtons},
		{"action buttons with video", urlButtons(), media(domain.MediaVideo), RouteMediaThenActionButtons},
		{"action buttons with document", urlButtons(), media(domain.MediaDocument), RouteMediaThenActionButtons},
		{"reply buttons", replyButtons(), nil, RouteReplyButtons},
		{"reply buttons with image", replyButtons(), media(domain.MediaImage), RouteReplyButtonsImage},
		{"reply buttons with video", replyButtons(), media(domain.MediaVideo), RouteReplyButtonsVideo},
		{"reply buttons with document", replyButtons(), media(domain.MediaDocument), RouteDocumentThenReplyButtons},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RouteFor(tc.buttons, tc.media); got != tc.want {
				t.Fatalf("RouteFor(%v, %v) = %v, want %v", tc.buttons, tc.media, got, tc.want)
			}
		})
	}
}

func jobWith(t *testing.T, buttons []domain.Button, mediaKind, mediaURL string) store.Broadcast {
	t.Helper()
	job := textJob("b1", 0, 0)
	job.MediaKind = mediaKind
	job.MediaURL = mediaURL
	if buttons != nil {
		raw, err := json.Marshal(buttons)
		if err != nil {
			t.Fatalf("marshal buttons: %v", err)
		}
		job.ButtonsJSON = raw
	}
	return job
}

func ops(calls []gwCall) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.op)
	}
	return out
}

func TestDeliverDocumentThenText(t *testing.T) {
	fs := newFakeStore(t, jobWith(t, nil, "document", "https://cdn.example.com/doc.pdf"), "5511900000001")
	gw := &fakeGateway{}
	d, sleeps := newTestDispatcher(fs, gw)

	if _, err := d.Handle(context.Background(), domain.ActionStart, "b1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := ops(gw.calls)
	if len(got) != 2 || got[0] != "send-document" || got[1] != "send-text" {
		t.Fatalf("expected document then text, got %v", got)
	}
	// fixed pause between the two halves
	if len(*sleeps) != 1 || (*sleeps)[0] != d.MediaFollowupDelay {
		t.Fatalf("expected one follow-up pause of %v, got %v", d.MediaFollowupDelay, *sleeps)
	}
}

func TestDeliverMediaThenActionButtons(t *testing.T) {
	fs := newFakeStore(t, jobWith(t, urlButtons(), "image", "https://cdn.example.com/a.png"), "5511900000001")
	gw := &fakeGateway{}
	d, _ := newTestDispatcher(fs, gw)

	if _, err := d.Handle(context.Background(), domain.ActionStart, "b1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := ops(gw.calls)
	if len(got) != 2 || got[0] != "send-image" || got[1] != "send-button-actions" {
		t.Fatalf("expected standalone image then action buttons, got %v", got)
	}
	if gw.calls[0].message != "" {
		t.Fatalf("standalone media must carry no caption, got %q", gw.calls[0].message)
	}
	if gw.calls[1].message == "" {
		t.Fatalf("button message must carry the rendered text")
	}
}

func TestDeliverDocumentThenReplyButtons(t *testing.T) {
	fs := newFakeStore(t, jobWith(t, replyButtons(), "document", "https://cdn.example.com/doc.pdf"), "5511900000001")
	gw := &fakeGateway{}
	d, _ := newTestDispatcher(fs, gw)

	if _, err := d.Handle(context.Background(), domain.ActionStart, "b1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := ops(gw.calls)
	if len(got) != 2 || got[0] != "send-document" || got[1] != "send-button-list" {
		t.Fatalf("expected document then reply buttons, got %v", got)
	}
}

func TestDeliverReplyButtonsImageSingleCall(t *testing.T) {
	fs := newFakeStore(t, jobWith(t, replyButtons(), "image", "https://cdn.example.com/a.png"), "5511900000001")
	gw := &fakeGateway{}
	d, _ := newTestDispatcher(fs, gw)

	if _, err := d.Handle(context.Background(), domain.ActionStart, "b1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := ops(gw.calls)
	if len(got) != 1 || got[0] != "send-button-list-image" {
		t.Fatalf("expected single combined call, got %v", got)
	}
	if gw.calls[0].url != "https://cdn.example.com/a.png" {
		t.Fatalf("expected media url on the combined call, got %q", gw.calls[0].url)
	}
}

func TestTwoStepAbortsWhenFirstHalfRejected(t *testing.T) {
	fs := newFakeStore(t, jobWith(t, nil, "document", "https://cdn.example.com/doc.pdf"), "11900000001")
	gw := &fakeGateway{rejectPhones: map[string]string{"5511900000001": "media download failed"}}
	d, _ := newTestDispatcher(fs, gw)

	if _, err := d.Handle(context.Background(), domain.ActionStart, "b1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(gw.calls) != 0 {
		t.Fatalf("rejected first half must not send a follow-up, got %v", ops(gw.calls))
	}
	if fs.job.FailedCount != 1 {
		t.Fatalf("expected failed=1, got %d", fs.job.FailedCount)
	}
	if fs.recipients[0].ErrorMessage != "media download failed" {
		t.Fatalf("expected first-half error recorded, got %q", fs.recipients[0].ErrorMessage)
	}
}

func TestPacingDelayBounds(t *testing.T) {
	d := New(nil, nil, syncSpawner{})
	job := textJob("b1", 3, 7)
	for i := 0; i < 50; i++ {
		got := d.pacingDelay(job)
		if got < 3*time.Second || got > 7*time.Second {
			t.Fatalf("delay %v outside [3s, 7s]", got)
		}
	}
	// inverted bounds collapse to min
	job.IntervalMaxSeconds = 1
	if got := d.pacingDelay(job); got != 3*time.Second {
		t.Fatalf("inverted bounds: got %v, want 3s", got)
	}
}
