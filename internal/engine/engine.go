// Package engine drives due schedules through the claim -> send -> commit
// state machine. Invocations may overlap; the store's conditional claim plus
// the sent_dates dedup check keep a schedule from sending twice on one day.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/cache"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/mail"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/model"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/repo"
)

// Stats summarizes one tick. Per-schedule outcomes are persisted, not
// returned; these counts exist for logs and the manual-run endpoint.
type Stats struct {
	Scanned int `json:"scanned"`
	Matched int `json:"matched"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Options struct {
	// Location is the reference timezone for dates and time-of-day
	// matching. Defaults to UTC.
	Location *time.Location
	// Workers bounds the per-tick fan-out. Defaults to 1 (sequential).
	Workers int
	// StaleClaim is the age past which an IN_PROGRESS claim is released
	// back to PENDING. Defaults to 15 minutes.
	StaleClaim time.Duration
	// SentMarker is an optional dedup fast path. May be nil.
	SentMarker cache.SentMarker
}

type Engine struct {
	store  repo.ScheduleRepository
	dial   mail.Dialer
	marker cache.SentMarker

	loc        *time.Location
	workers    int
	staleClaim time.Duration
}

func New(store repo.ScheduleRepository, dial mail.Dialer, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if dial == nil {
		return nil, errors.New("dialer must not be nil")
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	staleClaim := opts.StaleClaim
	if staleClaim <= 0 {
		staleClaim = 15 * time.Minute
	}

	return &Engine{
		store:      store,
		dial:       dial,
		marker:     opts.SentMarker,
		loc:        loc,
		workers:    workers,
		staleClaim: staleClaim,
	}, nil
}

// RunTick processes every schedule due at now. It returns an error only for
// invocation-level failures (credentials, store scan); per-schedule failures
// are persisted and counted, never propagated.
func (e *Engine) RunTick(ctx context.Context, now time.Time) (Stats, error) {
	local := now.In(e.loc)
	date := local.Format(time.DateOnly)
	minute := local.Format("15:04")

	transport, err := e.dial(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("acquire mail transport: %w", err)
	}

	// Claims abandoned by a tick that died between send and commit would
	// otherwise stay IN_PROGRESS forever. Releasing them accepts a possible
	// duplicate send for the lost day; a failed release just waits for the
	// next tick.
	if released, err := e.store.ReleaseStale(ctx, now.Add(-e.staleClaim)); err != nil {
		slog.Warn("stale claim release failed", "error", err)
	} else if released > 0 {
		slog.Info("released stale claims", "count", released)
	}

	candidates, err := e.store.ListDue(ctx, date)
	if err != nil {
		return Stats{}, fmt.Errorf("list due schedules: %w", err)
	}

	var due []model.Schedule
	for _, s := range candidates {
		if s.TimeOfDay == minute {
			due = append(due, s)
		}
	}

	stats := Stats{Scanned: len(candidates), Matched: len(due)}
	slog.Info("dispatch tick", "date", date, "minute", minute,
		"scanned", stats.Scanned, "matched", stats.Matched)

	var sent, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, s := range due {
		g.Go(func() error {
			switch e.dispatchOne(gctx, transport, s, date, now) {
			case outcomeSent:
				sent.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Sent = int(sent.Load())
	stats.Skipped = int(skipped.Load())
	stats.Failed = int(failed.Load())
	return stats, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

func (e *Engine) dispatchOne(ctx context.Context, transport mail.Transport, s model.Schedule, date string, now time.Time) outcome {
	log := slog.With("schedule", s.ID, "date", date)

	// Dedup first: a completed send this date, seen through either the
	// store or the marker cache, means nothing to do.
	if s.SentOn(date) {
		log.Debug("already sent today, skipping")
		return outcomeSkipped
	}
	if e.marker != nil {
		if sentToday, err := e.marker.AlreadySent(ctx, s.ID, date); err != nil {
			log.Debug("sent-marker lookup failed", "error", err)
		} else if sentToday {
			log.Debug("sent marker present, skipping")
			return outcomeSkipped
		}
	}

	// An empty resolved recipient list can never succeed: fail it without
	// claiming so no transport call is ever made.
	recipients := mail.FilterAddresses(s.Recipients)
	if len(recipients) == 0 {
		log.Warn("no valid recipients, marking failed")
		if err := e.store.MarkFailed(ctx, s.ID, "no valid recipients"); err != nil {
			log.Error("mark failed errored", "error", err)
		}
		return outcomeFailed
	}

	// The claim is the concurrency guard: exactly one overlapping
	// invocation wins the PENDING -> IN_PROGRESS transition.
	if err := e.store.Claim(ctx, s.ID, now); err != nil {
		if errors.Is(err, repo.ErrContended) {
			log.Debug("claim contended, skipping")
			return outcomeSkipped
		}
		log.Error("claim failed", "error", err)
		return outcomeFailed
	}

	err := transport.Send(ctx, mail.Message{
		Sender:     s.Sender,
		Recipients: recipients,
		Subject:    s.Subject,
		Body:       s.Body,
	})
	if err != nil {
		var rejected *mail.RecipientsRejectedError
		if errors.As(err, &rejected) {
			log.Warn("recipients rejected, marking failed", "error", err)
		} else {
			log.Warn("send failed, marking failed", "error", err)
		}
		if mErr := e.store.MarkFailed(ctx, s.ID, err.Error()); mErr != nil {
			log.Error("mark failed errored", "error", mErr)
		}
		return outcomeFailed
	}

	final := date == s.ActiveRange.End
	if err := e.store.CompleteSend(ctx, s.ID, date, final); err != nil {
		// The message went out but the commit was lost. The schedule stays
		// IN_PROGRESS until the stale-claim release picks it up.
		log.Error("send committed to transport but status commit failed", "error", err)
		return outcomeFailed
	}

	if e.marker != nil {
		if err := e.marker.MarkSent(ctx, s.ID, date, now); err != nil {
			log.Debug("sent-marker write failed", "error", err)
		}
	}

	log.Info("email sent", "final", final, "recipients", len(recipients))
	return outcomeSent
}
