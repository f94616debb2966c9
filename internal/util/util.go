package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID is sortable (nice for DB indexes and dashboards); the prefix makes IDs
// self-describing in logs.
func NewBroadcastID() string {
	t := time.Now().UTC()
	return "bct_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewRecipientID() string {
	t := time.Now().UTC()
	return "rcp_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
