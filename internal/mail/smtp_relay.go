package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// SMTPRelay sends through an authenticated STARTTLS relay. Each Send opens
// its own connection; nothing is shared across calls.
type SMTPRelay struct {
	host     string
	port     int
	timeout  time.Duration
	username string
	password string
}

func NewSMTPRelay(host string, port int, timeout time.Duration, username, password string) *SMTPRelay {
	return &SMTPRelay{
		host:     host,
		port:     port,
		timeout:  timeout,
		username: username,
		password: password,
	}
}

func (r *SMTPRelay) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(r.host, strconv.Itoa(r.port))

	d := net.Dialer{Timeout: r.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	// One deadline bounds the whole SMTP conversation.
	deadline := time.Now().Add(r.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}

	c, err := smtp.NewClient(conn, r.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if err := c.StartTLS(&tls.Config{ServerName: r.host}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}

	auth := smtp.PlainAuth("", r.username, r.password, r.host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := c.Mail(msg.Sender); err != nil {
		return fmt.Errorf("mail from %s: %w", msg.Sender, err)
	}

	for _, rcpt := range msg.Recipients {
		if err := c.Rcpt(rcpt); err != nil {
			if isPermanentRcptError(err) {
				return &RecipientsRejectedError{
					Recipients: []string{rcpt},
					Detail:     err.Error(),
				}
			}
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(encodeMessage(msg))); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return c.Quit()
}

// isPermanentRcptError reports whether the RCPT stage failed with a 5xx
// reply, which means the recipient list itself is bad.
func isPermanentRcptError(err error) bool {
	var te *textproto.Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Code >= 500 && te.Code < 600
}

func encodeMessage(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return b.String()
}
