package domain

import (
	"errors"
	"testing"
)

func TestParseAction(t *testing.T) {
	for _, s := range []string{"start", "pause", "cancel", "resume"} {
		a, err := ParseAction(s)
		if err != nil || string(a) != s {
			t.Fatalf("ParseAction(%q) = %v, %v", s, a, err)
		}
	}
	if _, err := ParseAction("restart"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if _, err := ParseAction(""); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction for empty action, got %v", err)
	}
}

func TestCreateBroadcastValidate(t *testing.T) {
	valid := CreateBroadcastRequest{
		Message:            "Oi {{name}}",
		IntervalMinSeconds: 3,
		IntervalMaxSeconds: 8,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*CreateBroadcastRequest)
		want error
	}{
		{"missing message", func(r *CreateBroadcastRequest) { r.Message = "" }, ErrMissingFields},
		{"negative min", func(r *CreateBroadcastRequest) { r.IntervalMinSeconds = -1 }, ErrBadInterval},
		{"min above max", func(r *CreateBroadcastRequest) { r.IntervalMinSeconds = 9 }, ErrBadInterval},
		{"bad media kind", func(r *CreateBroadcastRequest) {
			r.Media = &Media{Kind: "audio", URL: "https://x"}
		}, ErrBadMedia},
		{"media without url", func(r *CreateBroadcastRequest) {
			r.Media = &Media{Kind: MediaImage}
		}, ErrBadMedia},
		{"bad button kind", func(r *CreateBroadcastRequest) {
			r.Buttons = []Button{{Kind: "menu", Label: "x"}}
		}, ErrBadButton},
		{"button without label", func(r *CreateBroadcastRequest) {
			r.Buttons = []Button{{Kind: ButtonURL, Value: "https://x"}}
		}, ErrBadButton},
		{"mixed button kinds", func(r *CreateBroadcastRequest) {
			r.Buttons = []Button{
				{Kind: ButtonURL, Label: "Open", Value: "https://x"},
				{Kind: ButtonReply, Label: "Yes"},
			}
		}, ErrMixedButtons},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid
			tc.mut(&r)
			if err := r.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	// a fixed cadence is expressed as min == max
	fixed := valid
	fixed.IntervalMinSeconds, fixed.IntervalMaxSeconds = 5, 5
	if err := fixed.Validate(); err != nil {
		t.Fatalf("fixed interval rejected: %v", err)
	}
}

func TestAddRecipientsValidate(t *testing.T) {
	if err := (AddRecipientsRequest{}).Validate(); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields for empty list, got nil")
	}
	req := AddRecipientsRequest{Recipients: []RecipientInput{{Phone: "11987654321", Name: "Maria"}, {Name: "NoPhone"}}}
	if err := req.Validate(); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields for blank phone")
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []JobStatus{StatusDraft, StatusRunning, StatusPaused} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusCompleted, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
