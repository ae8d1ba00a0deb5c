// Package mail delivers account activation emails.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strings"

	domain "sampleapp/backend/internal/domain/auth"
	"sampleapp/backend/internal/logging"
)

// Swappable in tests.
var sendMail = smtp.SendMail

// ActivationLink builds the link a user follows to activate the account.
func ActivationLink(baseURL, token, email string) string {
	return strings.TrimRight(baseURL, "/") + "/account_activations/" + url.PathEscape(token) +
		"/edit?email=" + url.QueryEscape(email)
}

// SMTPMailer sends activation mail through an SMTP relay.
type SMTPMailer struct {
	addr    string
	auth    smtp.Auth
	from    string
	baseURL string
	logger  logging.Logger
}

// NewSMTPMailer builds a mailer. PLAIN auth is used when username is set.
func NewSMTPMailer(addr, username, password, from, baseURL string, logger logging.Logger) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{addr: addr, auth: auth, from: from, baseURL: baseURL, logger: logger}
}

// SendActivation mails the activation link to the user. Failures are
// returned, not logged.
func (m *SMTPMailer) SendActivation(ctx context.Context, user *domain.User, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildActivationMessage(m.from, user, ActivationLink(m.baseURL, token, user.Email))
	if err := sendMail(m.addr, m.auth, m.from, []string{user.Email}, msg); err != nil {
		return fmt.Errorf("smtp %s: %w", m.addr, err)
	}
	m.logger.Info(ctx, "activation mail sent", "user_id", user.ID)
	return nil
}

func buildActivationMessage(from string, user *domain.User, link string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + user.Email + "\r\n")
	b.WriteString("Subject: Account activation\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Hi " + user.Name + ",\r\n\r\n")
	b.WriteString("Welcome! Click on the link below to activate your account:\r\n\r\n")
	b.WriteString(link + "\r\n")
	return []byte(b.String())
}

// LogMailer records that an activation mail would have been sent. The link is
// not logged because it carries the activation token.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendActivation(ctx context.Context, user *domain.User, token string) error {
	m.logger.Warn(ctx, "SMTP not configured; activation mail dropped", "user_id", user.ID)
	return nil
}
