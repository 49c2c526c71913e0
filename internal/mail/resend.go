package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendTransport delivers through the Resend HTTP API instead of an SMTP
// relay. No relay credentials are involved; the API key is baked into the
// client.
type ResendTransport struct {
	client *resend.Client
}

func NewResendTransport(apiKey string) *ResendTransport {
	return &ResendTransport{client: resend.NewClient(apiKey)}
}

func (t *ResendTransport) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    msg.Sender,
		To:      msg.Recipients,
		Subject: msg.Subject,
		Html:    msg.Body,
	}

	_, err := t.client.Emails.SendWithContext(ctx, params)
	if err == nil {
		return nil
	}
	return classifyResendError(err, msg.Recipients)
}

// classifyResendError maps API failures onto the transport taxonomy. The API
// reports bad recipient addresses as a validation error naming the `to`
// field; that is the terminal recipient-rejection class. Everything else
// stays generic.
func classifyResendError(err error, recipients []string) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "validation_error") && strings.Contains(lower, "to") {
		return &RecipientsRejectedError{
			Recipients: recipients,
			Detail:     err.Error(),
		}
	}
	return fmt.Errorf("resend send failed: %w", err)
}
