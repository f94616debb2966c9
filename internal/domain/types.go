package domain

import (
	"errors"
	"time"
)

type JobStatus string

const (
	StatusDraft     JobStatus = "draft"
	StatusRunning   JobStatus = "running"
	StatusPaused    JobStatus = "paused"
	StatusCompleted JobStatus = "completed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no transition may leave this status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionCancel Action = "cancel"
	ActionResume Action = "resume"
)

var ErrUnknownAction = errors.New("unknown action")

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionStart, ActionPause, ActionCancel, ActionResume:
		return Action(s), nil
	}
	return "", ErrUnknownAction
}

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

type ButtonKind string

const (
	ButtonURL   ButtonKind = "url"
	ButtonCall  ButtonKind = "call"
	ButtonReply ButtonKind = "reply"
)

// Button is a tagged variant: Value holds the href for url buttons, the phone
// number for call buttons, and is empty for reply buttons.
type Button struct {
	Kind  ButtonKind `json:"kind"`
	Label string     `json:"label"`
	Value string     `json:"value,omitempty"`
}

// Media is an optional attachment on a broadcast.
type Media struct {
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url"`
}

// Broadcast is one campaign definition plus its run state. Counters are only
// ever incremented by the dispatcher that currently holds the run.
type Broadcast struct {
	ID                 string     `json:"id"`
	Message            string     `json:"message"`
	MessageVariations  []string   `json:"messageVariations,omitempty"`
	Media              *Media     `json:"media,omitempty"`
	Buttons            []Button   `json:"buttons,omitempty"`
	IntervalMinSeconds int        `json:"intervalMinSeconds"`
	IntervalMaxSeconds int        `json:"intervalMaxSeconds"`
	Status             JobStatus  `json:"status"`
	SentCount          int64      `json:"sentCount"`
	FailedCount        int64      `json:"failedCount"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	LastProcessingAt   *time.Time `json:"lastProcessingAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Recipient is one destination's delivery record within a broadcast. Status is
// terminal once it leaves pending; sent_at, error_message and variation_used
// are set exactly once, at the same write.
type Recipient struct {
	ID            string          `json:"id"`
	BroadcastID   string          `json:"broadcastId"`
	Phone         string          `json:"phone"`
	Name          string          `json:"name"`
	Status        RecipientStatus `json:"status"`
	SentAt        *time.Time      `json:"sentAt,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	VariationUsed *int            `json:"variationUsed,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

var (
	ErrMissingFields = errors.New("missing required fields")
	ErrBadInterval   = errors.New("interval_min_seconds must be >= 0 and <= interval_max_seconds")
	ErrBadMedia      = errors.New("media kind must be image, video or document")
	ErrBadButton     = errors.New("button kind must be url, call or reply")
	ErrMixedButtons  = errors.New("buttons on one broadcast must share a kind")
)

// CreateBroadcastRequest is the dashboard-facing creation payload. When only
// a single fixed interval is wanted, min and max are set equal.
type CreateBroadcastRequest struct {
	Message            string   `json:"message"`
	MessageVariations  []string `json:"messageVariations,omitempty"`
	Media              *Media   `json:"media,omitempty"`
	Buttons            []Button `json:"buttons,omitempty"`
	IntervalMinSeconds int      `json:"intervalMinSeconds"`
	IntervalMaxSeconds int      `json:"intervalMaxSeconds"`
}

func (r CreateBroadcastRequest) Validate() error {
	if r.Message == "" {
		return ErrMissingFields
	}
	if r.IntervalMinSeconds < 0 || r.IntervalMinSeconds > r.IntervalMaxSeconds {
		return ErrBadInterval
	}
	if r.Media != nil {
		switch r.Media.Kind {
		case MediaImage, MediaVideo, MediaDocument:
		default:
			return ErrBadMedia
		}
		if r.Media.URL == "" {
			return ErrBadMedia
		}
	}
	for i, b := range r.Buttons {
		switch b.Kind {
		case ButtonURL, ButtonCall, ButtonReply:
		default:
			return ErrBadButton
		}
		if b.Label == "" {
			return ErrBadButton
		}
		// The gateway operation is selected per broadcast, so one kind per set.
		if i > 0 && b.Kind != r.Buttons[0].Kind {
			return ErrMixedButtons
		}
	}
	return nil
}

type AddRecipientsRequest struct {
	Recipients []RecipientInput `json:"recipients"`
}

type RecipientInput struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

func (r AddRecipientsRequest) Validate() error {
	if len(r.Recipients) == 0 {
		return ErrMissingFields
	}
	for _, in := range r.Recipients {
		if in.Phone == "" {
			return ErrMissingFields
		}
	}
	return nil
}

// ControlRequest is the control entry point payload, invoked by the dashboard
// and by the periodic scheduler.
type ControlRequest struct {
	Action      string `json:"action"`
	BroadcastID string `json:"broadcastId"`
}

func (r ControlRequest) Validate() error {
	if r.Action == "" || r.BroadcastID == "" {
		return ErrMissingFields
	}
	return nil
}

type ControlResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CreateResponse struct {
	BroadcastID string `json:"broadcastId"`
	Status      string `json:"status"`
}
