package store

import "time"

type Broadcast struct {
	ID                 string
	Message            string
	MessageVariations  []string
	MediaKind          string
	MediaURL           string
	ButtonsJSON        []byte
	IntervalMinSeconds int
	IntervalMaxSeconds int
	Status             string
	SentCount          int64
	FailedCount        int64
	StartedAt          *time.Time
	CompletedAt        *time.Time
	LastProcessingAt   *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Recipient struct {
	ID            string
	BroadcastID   string
	Phone         string
	Name          string
	Status        string
	SentAt        *time.Time
	ErrorMessage  string
	VariationUsed *int
	CreatedAt     time.Time
}

type BroadcastInsert struct {
	ID                 string
	Message            string
	MessageVariations  []string
	MediaKind          string
	MediaURL           string
	ButtonsJSON        []byte
	IntervalMinSeconds int
	IntervalMaxSeconds int
	Status             string
	Now                time.Time
}

type RecipientInsert struct {
	ID          string
	BroadcastID string
	Phone       string
	Name        string
	Now         time.Time
}

// RecipientOutcome finalizes one ledger row. Exactly one of the sent/failed
// fields is meaningful depending on Status.
type RecipientOutcome struct {
	ID            string
	Status        string
	ErrorMessage  string
	VariationUsed *int
	Now           time.Time
}

type Stats struct {
	Total   int64
	Pending int64
	Sent    int64
	Failed  int64
}
