package mail

import (
	"context"
	"log/slog"
)

// LogTransport logs sends instead of delivering them. Development only.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, msg Message) error {
	slog.Info("mail send (log transport)",
		"sender", msg.Sender,
		"recipients", len(msg.Recipients),
		"subject", msg.Subject,
	)
	return nil
}
