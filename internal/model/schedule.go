package model

import "time"

type Status string

const (
	Pending    Status = "PENDING"
	InProgress Status = "IN_PROGRESS"
	Sent       Status = "SENT"
	Failed     Status = "FAILED"
)

// DateRange is an inclusive [Start, End] span of civil dates, both
// formatted as "2006-01-02" in the reference timezone.
type DateRange struct {
	Start string
	End   string
}

// Contains reports whether date (formatted "2006-01-02") falls inside the
// range. Civil dates compare correctly as strings in this format.
func (r DateRange) Contains(date string) bool {
	return r.Start <= date && date <= r.End
}

// Schedule is one recurring send request. Content fields are immutable
// after creation; only Status, SentDates, ClaimedAt and LastError are
// mutated, and only by the dispatch engine.
type Schedule struct {
	ID         string
	Sender     string
	Recipients []string
	Subject    string
	Body       string

	// TimeOfDay is the "15:04" wall-clock minute in the reference timezone
	// at which the schedule fires on each active day.
	TimeOfDay   string
	ActiveRange DateRange

	// TriggerInstant is start_date+TimeOfDay converted to UTC. It validates
	// the original request; dueness is re-derived from TimeOfDay each day.
	TriggerInstant time.Time

	Status Status

	// SentDates holds the dates ("2006-01-02") on which a send was
	// committed. Append is idempotent; a date never appears twice.
	SentDates []string

	ClaimedAt *time.Time
	LastError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SentOn reports whether a send was already committed for date.
func (s *Schedule) SentOn(date string) bool {
	for _, d := range s.SentDates {
		if d == date {
			return true
		}
	}
	return false
}
