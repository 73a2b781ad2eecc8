package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/charlesng35/teacherrate/pkg/mail"
)

var verificationHTML = template.Must(template.New("verify").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<p>{{if .Name}}Hello {{.Name}},{{else}}Hello,{{end}}</p>
<p>Thanks for signing up to {{.AppName}}. Confirm your email address:</p>
<p><a href="{{.Link}}">Verify my account</a></p>
<p style="color:#666">The link can be used once. If you did not create an account, you can ignore this message.</p>
</body></html>
`))

// VerificationMailer emails verification links through a mail.Mailer.
type VerificationMailer struct {
	mailer  mail.Mailer
	baseURL string
	appName string
}

// NewVerificationMailer builds a notifier whose links point at baseURL + "/verify".
func NewVerificationMailer(mailer mail.Mailer, baseURL, appName string) (*VerificationMailer, error) {
	if mailer == nil {
		return nil, errors.New("verification mailer: mailer is required")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		appName = "TeacherRate"
	}
	return &VerificationMailer{
		mailer:  mailer,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		appName: appName,
	}, nil
}

// SendVerificationEmail delivers the verification link for token to email.
func (m *VerificationMailer) SendVerificationEmail(ctx context.Context, email, name, token string) error {
	link := m.Link(token)
	html, err := m.html(name, link)
	if err != nil {
		return fmt.Errorf("verification mailer: render: %w", err)
	}
	msg := mail.Message{
		To:       []string{email},
		Subject:  fmt.Sprintf("Verify your %s account", m.appName),
		Body:     m.body(name, link),
		HTMLBody: html,
	}
	if err := m.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, mail.ErrSMTPDisabled) {
			return nil
		}
		return fmt.Errorf("verification mailer: send: %w", err)
	}
	return nil
}

// Link returns the verification URL for token.
func (m *VerificationMailer) Link(token string) string {
	return fmt.Sprintf("%s/verify?token=%s", m.baseURL, url.QueryEscape(token))
}

func (m *VerificationMailer) body(name, link string) string {
	greeting := "Hello"
	if name = strings.TrimSpace(name); name != "" {
		greeting = "Hello " + name
	}
	return fmt.Sprintf("%s,\n\nThanks for signing up to %s. Confirm your email address by visiting the link below:\n%s\n\nThe link can be used once. If you did not create an account, you can ignore this message.\n", greeting, m.appName, link)
}

func (m *VerificationMailer) html(name, link string) (string, error) {
	var buf bytes.Buffer
	err := verificationHTML.Execute(&buf, struct {
		Name    string
		AppName string
		Link    string
	}{strings.TrimSpace(name), m.appName, link})
	return buf.String(), err
}
