// Package notify delivers booking emails: acknowledgements and decisions to
// the client, and an action alert to the studio inbox. Delivery failures are
// logged and never abort the booking flow that triggered them.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends a single plain-text email. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer is a Mailer over a plain SMTP endpoint with optional AUTH.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send implements Mailer. When Username is empty the message is submitted
// without AUTH (local relay setups).
func (m *SMTPMailer) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(addr, auth, m.From, []string{to}, []byte(msg))
}
