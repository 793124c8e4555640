// Package mail delivers account activation messages. The server only ever
// triggers one message type, so the surface is a single fire-and-forget call.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"inkwell.org/internal/obs"
)

// SMTPMailer sends activation mail through a plain SMTP relay.
type SMTPMailer struct {
	addr       string
	from       string
	serviceURL string
	auth       smtp.Auth
	send       func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer constructs a mailer for the relay at addr (host:port).
// Username may be empty for relays without authentication. serviceURL is the
// public base used to build activation links.
func NewSMTPMailer(addr, from, username, password, serviceURL string) (*SMTPMailer, error) {
	if addr == "" || from == "" {
		return nil, fmt.Errorf("mail: relay address and sender are required")
	}
	m := &SMTPMailer{
		addr:       addr,
		from:       from,
		serviceURL: strings.TrimRight(serviceURL, "/"),
		send:       smtp.SendMail,
	}
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m, nil
}

// SendActivationMail delivers the activation link to a new account.
func (m *SMTPMailer) SendActivationMail(_ context.Context, email, username, token string) error {
	link := m.serviceURL + "/auth/activate/" + token
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + email,
		"Subject: Activate your account",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hi " + username + ",",
		"",
		"Welcome! Confirm your address to activate your account:",
		"",
		link,
		"",
		"The link expires in one hour. If you did not sign up, ignore this mail.",
		"",
	}, "\r\n")

	if err := m.send(m.addr, m.auth, m.from, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", email, err)
	}
	return nil
}

// LogMailer writes activation tokens to the log instead of sending mail.
// Default in development, where no relay is configured.
type LogMailer struct{}

func (LogMailer) SendActivationMail(_ context.Context, email, username, token string) error {
	obs.LogEvent(map[string]any{
		"level":    "info",
		"msg":      "activation mail (log delivery)",
		"email":    email,
		"username": username,
		"token":    token,
	})
	return nil
}
