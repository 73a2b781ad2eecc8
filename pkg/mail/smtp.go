package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const defaultSMTPTimeout = 10 * time.Second

// SMTPSettings configure the SMTP relay. UseTLS selects implicit TLS; without
// it the connection is upgraded with STARTTLS when the server offers it.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

func (s SMTPSettings) address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s SMTPSettings) validate() error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Host) == "" {
		return errors.New("smtp: host is required when enabled")
	}
	if s.Port <= 0 {
		return errors.New("smtp: port is required when enabled")
	}
	return nil
}

// smtpClient is the subset of *smtp.Client used for delivery. Close also
// closes the underlying connection.
type smtpClient interface {
	Auth(smtp.Auth) error
	Mail(string) error
	Rcpt(string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
	Extension(string) (bool, string)
}

type smtpDialer func(ctx context.Context, settings SMTPSettings) (smtpClient, error)

type smtpMailer struct {
	settings SMTPSettings
	dial     smtpDialer
	now      func() time.Time
}

// NewSMTPMailer validates settings and returns a Mailer delivering through
// SMTP. A disabled configuration yields a mailer whose Send returns
// ErrSMTPDisabled.
func NewSMTPMailer(settings SMTPSettings) (Mailer, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultSMTPTimeout
	}
	return &smtpMailer{settings: settings, dial: dialSMTP, now: time.Now}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.settings.Enabled {
		return ErrSMTPDisabled
	}

	env, err := newEnvelope(msg, m.settings.From)
	if err != nil {
		return err
	}
	raw, err := compose(env, m.now())
	if err != nil {
		return err
	}

	client, err := m.dial(ctx, m.settings)
	if err != nil {
		return err
	}
	defer client.Close()

	if m.settings.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.settings.Username, m.settings.Password, m.settings.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp: auth: %w", err)
			}
		}
	}

	if err := client.Mail(env.from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range env.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: finish message: %w", err)
	}
	return client.Quit()
}

// dialSMTP connects with the settings' timeout as the deadline for the whole
// exchange, or the context deadline when that is sooner.
func dialSMTP(ctx context.Context, settings SMTPSettings) (smtpClient, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(settings.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	tlsConfig := &tls.Config{ServerName: settings.Host, MinVersion: tls.VersionTLS12}
	netDialer := &net.Dialer{Timeout: settings.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if settings.UseTLS {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext(ctx, "tcp", settings.address())
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", settings.address())
	}
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", settings.address(), err)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, settings.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: handshake: %w", err)
	}

	if !settings.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("smtp: starttls: %w", err)
			}
		}
	}
	return client, nil
}
