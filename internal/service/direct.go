package service

import (
	"context"

	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/mail"
)

// SendRequest is the immediate-send payload.
type SendRequest struct {
	Sender  string   `json:"sender"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// ImmediateSender is the stateless single-shot path: validate, send, done.
// No persistence, no retry, no idempotency.
type ImmediateSender struct {
	dial mail.Dialer
}

func NewImmediateSender(dial mail.Dialer) *ImmediateSender {
	return &ImmediateSender{dial: dial}
}

func (s *ImmediateSender) Send(ctx context.Context, req SendRequest) error {
	if req.Sender == "" || len(req.To) == 0 || req.Subject == "" || req.Body == "" {
		return validationErrorf("missing or invalid email data")
	}

	transport, err := s.dial(ctx)
	if err != nil {
		return err
	}

	return transport.Send(ctx, mail.Message{
		Sender:     req.Sender,
		Recipients: req.To,
		Subject:    req.Subject,
		Body:       req.Body,
	})
}
