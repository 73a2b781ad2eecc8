package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/teacherrate/internal/app"
	iauth "github.com/charlesng35/teacherrate/internal/auth"
	testutil "github.com/charlesng35/teacherrate/internal/database/testutil"
	"github.com/charlesng35/teacherrate/internal/models"
)

func findCheck(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %q not found", id)
	return Check{}
}

func TestAuditServiceRun(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.NoError(t, db.Create(&models.User{
		Name:       "Admin",
		Email:      "admin@example.com",
		Password:   "hashed",
		IsAdmin:    true,
		IsVerified: true,
	}).Error)

	secret := "0123456789abcdef0123456789abcdef0123456789abcdef"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: secret, Issuer: "test-suite", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{CORS: app.CORSConfig{AllowedOrigins: []string{"https://rate.example.com"}}},
		Email:  app.EmailConfig{SMTP: app.SMTPConfig{Enabled: true, Host: "smtp.example.com", Port: 587, UseTLS: true}},
	}

	svc := NewAuditService(db, jwtSvc, cfg)
	fixed := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result := svc.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 5)
	require.Equal(t, 5, result.Summary[string(StatusPass)])
}

func TestAuditServiceFlagsWeakSettings(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "short", AccessTokenTTL: 30 * 24 * time.Hour})
	require.NoError(t, err)

	cfg := &app.Config{Server: app.ServerConfig{CORS: app.CORSConfig{AllowedOrigins: []string{"*"}}}}

	result := NewAuditService(db, jwtSvc, cfg).Run(context.Background())

	require.Equal(t, StatusWarn, findCheck(t, result, "admin_present").Status)
	require.Equal(t, StatusFail, findCheck(t, result, "jwt_secret_strength").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "access_token_ttl").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "email_delivery").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "cors_origins").Status)
	require.Equal(t, 1, result.Summary[string(StatusFail)])
	require.Equal(t, 4, result.Summary[string(StatusWarn)])
}

func TestAuditServiceWithoutDependencies(t *testing.T) {
	result := NewAuditService(nil, nil, nil).Run(context.Background())
	require.Equal(t, len(result.Checks), result.Summary[string(StatusWarn)])
}

func TestResultLogReportsNonPassingChecks(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	result := Result{
		Checks: []Check{
			{ID: "jwt_secret_strength", Status: StatusPass},
			{ID: "email_delivery", Status: StatusWarn, Message: "SMTP is disabled"},
		},
		Summary: map[string]int{"pass": 1, "warn": 1},
	}
	result.Log(zap.New(core))

	warnings := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warnings, 1)
	require.Equal(t, "email_delivery", warnings[0].ContextMap()["check"])
	require.Equal(t, 1, logs.FilterMessage("security audit complete").Len())
}
