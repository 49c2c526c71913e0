package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/mail"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/model"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/repo"
)

// ValidationError marks a caller mistake in a request payload, as opposed to
// an infrastructure failure.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IntakeRequest is the schedule-registration payload.
type IntakeRequest struct {
	Sender    string   `json:"sender"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	SendTime  string   `json:"send_time"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// Intake validates schedule requests and persists the resulting records.
type Intake struct {
	store repo.ScheduleRepository
	loc   *time.Location
}

func NewIntake(store repo.ScheduleRepository, loc *time.Location) *Intake {
	if loc == nil {
		loc = time.UTC
	}
	return &Intake{store: store, loc: loc}
}

// Create validates req and persists a new PENDING schedule. The first
// violated constraint is reported; nothing is persisted on failure.
// Recipients failing the address grammar are dropped silently unless that
// empties the list.
func (i *Intake) Create(ctx context.Context, req IntakeRequest) (*model.Schedule, error) {
	if req.Sender == "" || len(req.To) == 0 || req.Subject == "" || req.Body == "" ||
		req.SendTime == "" || req.StartDate == "" || req.EndDate == "" {
		return nil, validationErrorf("missing required fields")
	}

	if !mail.ValidAddress(req.Sender) {
		return nil, validationErrorf("invalid sender email: %s", req.Sender)
	}

	recipients := mail.FilterAddresses(req.To)
	if len(recipients) == 0 {
		return nil, validationErrorf("no valid recipient emails provided")
	}

	if _, err := time.ParseInLocation(time.DateOnly, req.StartDate, i.loc); err != nil {
		return nil, validationErrorf("invalid start date: %s", req.StartDate)
	}
	if _, err := time.ParseInLocation(time.DateOnly, req.EndDate, i.loc); err != nil {
		return nil, validationErrorf("invalid end date: %s", req.EndDate)
	}
	if req.StartDate > req.EndDate {
		return nil, validationErrorf("start date %s is after end date %s", req.StartDate, req.EndDate)
	}

	trigger, err := time.ParseInLocation("2006-01-02 15:04", req.StartDate+" "+req.SendTime, i.loc)
	if err != nil {
		return nil, validationErrorf("invalid time format: %s", req.SendTime)
	}

	s := &model.Schedule{
		ID:         uuid.NewString(),
		Sender:     req.Sender,
		Recipients: recipients,
		Subject:    req.Subject,
		Body:       req.Body,
		TimeOfDay:  trigger.Format("15:04"),
		ActiveRange: model.DateRange{
			Start: req.StartDate,
			End:   req.EndDate,
		},
		TriggerInstant: trigger.UTC(),
		Status:         model.Pending,
		SentDates:      []string{},
	}

	if err := i.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("persist schedule: %w", err)
	}
	return s, nil
}
