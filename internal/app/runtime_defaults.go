package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charlesng35/teacherrate/pkg/crypto"
	"github.com/charlesng35/teacherrate/pkg/mail"
)

const (
	jwtSecretBytes = 48

	smtpImplicitTLSPort = 465
	smtpSubmissionPort  = 587
	smtpDialTimeout     = 10 * time.Second
)

// ApplyRuntimeDefaults fills values that cannot have a static default and
// checks the ones the verification flow depends on. The returned set names
// every key it filled in; values are never included so the caller can log it.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	base, err := verificationBaseURL(cfg.Auth.Verification.BaseURL)
	if err != nil {
		return nil, err
	}
	if base != nil {
		cfg.Auth.Verification.BaseURL = strings.TrimRight(base.String(), "/")
	}

	smtp := &cfg.Email.SMTP
	if smtp.Enabled && strings.TrimSpace(smtp.From) == "" && base != nil && base.Hostname() != "" {
		smtp.From = "no-reply@" + base.Hostname()
		generated["email.smtp.from"] = true
	}

	return generated, nil
}

// verificationBaseURL parses the link prefix put into verification emails.
// An empty value is allowed; links are then relative.
func verificationBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("auth.verification.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("auth.verification.base_url %q must be an absolute http(s) URL", raw)
	}
	return u, nil
}

// SMTPSettings returns the relay settings used for verification mail. An unset
// port follows the TLS mode: 465 for implicit TLS, 587 for STARTTLS.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP

	port := smtp.Port
	if port <= 0 {
		port = smtpSubmissionPort
		if smtp.UseTLS {
			port = smtpImplicitTLSPort
		}
	}
	timeout := smtp.Timeout
	if timeout <= 0 {
		timeout = smtpDialTimeout
	}

	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     port,
		Username: strings.TrimSpace(smtp.Username),
		Password: smtp.Password,
		From:     strings.TrimSpace(smtp.From),
		UseTLS:   smtp.UseTLS,
		Timeout:  timeout,
	}
}
