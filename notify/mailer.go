/*
mailer.go - Pluggable email delivery backends

PURPOSE:
  The dispatcher composes messages; delivery is a swappable backend so
  deployments can choose SendGrid in production, console output in
  development, and an in-memory capture in tests.

BACKENDS:
  SendgridMailer: Delivers through the SendGrid v3 mail API
  ConsoleMailer:  Writes the rendered message to the process log
  CaptureMailer:  Records messages in memory for assertions

SEE ALSO:
  - dispatcher.go: The only producer of Messages
*/
package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Address is a display name plus an email address.
type Address struct {
	Name  string
	Email string
}

// Message is one fully rendered email ready for delivery.
type Message struct {
	To       Address
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer delivers a rendered message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// =============================================================================
// SENDGRID
// =============================================================================

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridMailer delivers through the SendGrid v3 API.
type SendgridMailer struct {
	Key  string
	From Address
}

var _ Mailer = (*SendgridMailer)(nil)

func (m *SendgridMailer) Send(_ context.Context, msg Message) error {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Email))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(sgmail.NewEmail(m.From.Name, m.From.Email))
	v3.AddPersonalizations(p)
	v3.AddContent(
		sgmail.NewContent("text/plain", msg.TextBody),
		sgmail.NewContent("text/html", msg.HTMLBody),
	)

	req := sendgrid.GetRequest(m.Key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(v3)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// =============================================================================
// CONSOLE
// =============================================================================

// ConsoleMailer writes the message to the process log instead of
// delivering it. Intended for development.
type ConsoleMailer struct {
	From   Address
	Logger *log.Logger
}

var _ Mailer = (*ConsoleMailer)(nil)

func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	body := new(strings.Builder)
	fmt.Fprintf(body, "From: %s <%s>\r\n", m.From.Name, m.From.Email)
	fmt.Fprintf(body, "To: %s <%s>\r\n", msg.To.Name, msg.To.Email)
	fmt.Fprintf(body, "Subject: %s\r\n\r\n", msg.Subject)
	fmt.Fprintf(body, "%s\r\n", msg.TextBody)

	if m.Logger != nil {
		m.Logger.Printf("[Mailer] %s", body.String())
	} else {
		log.Printf("[Mailer] %s", body.String())
	}
	return nil
}

// =============================================================================
// CAPTURE
// =============================================================================

// CaptureMailer records every message in memory. Tests assert against
// Sent.
type CaptureMailer struct {
	mu   sync.Mutex
	Sent []Message
}

var _ Mailer = (*CaptureMailer)(nil)

func (m *CaptureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// Reset clears the captured messages.
func (m *CaptureMailer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
}
