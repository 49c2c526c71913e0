package repo

import (
	"context"
	"errors"
	"time"

	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/model"
)

var (
	// ErrNotFound is returned when no schedule exists for the given id.
	ErrNotFound = errors.New("schedule not found")

	// ErrContended is returned by conditional updates when the stored
	// status no longer matches the precondition. It is an expected outcome
	// under overlapping dispatch invocations, not a failure.
	ErrContended = errors.New("schedule claim contended")
)

type ScheduleRepository interface {
	Create(ctx context.Context, s *model.Schedule) error
	Get(ctx context.Context, id string) (*model.Schedule, error)
	List(ctx context.Context, limit, offset int) ([]model.Schedule, error)

	// ListDue returns every PENDING schedule whose active range contains
	// date ("2006-01-02"). Time-of-day narrowing is the caller's job.
	ListDue(ctx context.Context, date string) ([]model.Schedule, error)

	// Claim atomically moves a schedule from PENDING to IN_PROGRESS,
	// recording the claim instant. Returns ErrContended if the schedule is
	// no longer PENDING.
	Claim(ctx context.Context, id string, at time.Time) error

	// CompleteSend records a committed send for date: appends date to
	// sent_dates (idempotently) and sets status to SENT when final is true,
	// otherwise back to PENDING. The update only applies while the
	// schedule is IN_PROGRESS; otherwise ErrContended is returned.
	CompleteSend(ctx context.Context, id, date string, final bool) error

	MarkFailed(ctx context.Context, id, reason string) error

	// ReleaseStale reverts IN_PROGRESS schedules claimed before cutoff back
	// to PENDING and reports how many rows were released.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
}
