// Package mail delivers account emails over SMTP, or writes them to the log
// when no relay is configured.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrSMTPDisabled signals that SMTP delivery is disabled via configuration.
	ErrSMTPDisabled = errors.New("smtp: delivery disabled")
	// ErrNoRecipients is returned when a message has no usable To address.
	ErrNoRecipients = errors.New("mail: at least one recipient is required")
)

// Message is an outbound email. HTMLBody is optional; when set the message
// is sent as multipart/alternative with Body as the plain-text part.
type Message struct {
	From     string
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// envelope is a message whose addresses have been normalised and checked.
type envelope struct {
	from string
	to   []string
	msg  Message
}

func newEnvelope(msg Message, defaultFrom string) (envelope, error) {
	to := recipients(msg.To)
	if len(to) == 0 {
		return envelope{}, ErrNoRecipients
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = strings.TrimSpace(defaultFrom)
	}
	if from == "" {
		return envelope{}, errors.New("mail: sender address is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return envelope{}, fmt.Errorf("mail: invalid from address: %w", err)
	}
	for _, addr := range to {
		if _, err := mail.ParseAddress(addr); err != nil {
			return envelope{}, fmt.Errorf("mail: invalid recipient address %q: %w", addr, err)
		}
	}

	return envelope{from: from, to: to, msg: msg}, nil
}

// recipients trims addresses and drops blanks and duplicates, keeping order.
func recipients(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

type logMailer struct {
	log *zap.Logger
}

// NewLogMailer returns a Mailer that records each message at info level
// instead of delivering it.
func NewLogMailer(log *zap.Logger) Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &logMailer{log: log}
}

func (m *logMailer) Send(_ context.Context, msg Message) error {
	to := recipients(msg.To)
	if len(to) == 0 {
		return ErrNoRecipients
	}
	m.log.Info("outbound email",
		zap.Strings("to", to),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
		zap.Bool("html", msg.HTMLBody != ""),
	)
	return nil
}
