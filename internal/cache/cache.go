package cache

import (
	"context"
	"time"
)

// SentMarker is a best-effort fast path for same-day dedup. The store's
// sent_dates column stays the source of truth; a miss here only costs an
// extra store round-trip, never a duplicate send.
type SentMarker interface {
	MarkSent(ctx context.Context, scheduleID, date string, sentAt time.Time) error
	AlreadySent(ctx context.Context, scheduleID, date string) (bool, error)
}
