package mail

import (
	"context"
	"fmt"
	"strings"
)

// Message is one multi-recipient email. The body is HTML.
type Message struct {
	Sender     string
	Recipients []string
	Subject    string
	Body       string
}

// Transport delivers a single message. A send is all-or-nothing: either the
// relay accepts the message for every recipient or the call returns an error.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Dialer yields a ready transport for one dispatch invocation, fetching
// whatever credentials the transport needs. A Dialer error means no sends
// can happen this invocation.
type Dialer func(ctx context.Context) (Transport, error)

// RecipientsRejectedError reports that the relay refused the message at the
// recipient stage. It is terminal: retrying the same recipient list cannot
// succeed.
type RecipientsRejectedError struct {
	Recipients []string
	Detail     string
}

func (e *RecipientsRejectedError) Error() string {
	return fmt.Sprintf("recipients rejected (%s): %s",
		strings.Join(e.Recipients, ", "), e.Detail)
}
