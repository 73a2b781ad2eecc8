package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/app"
	iauth "github.com/charlesng35/teacherrate/internal/auth"
	"github.com/charlesng35/teacherrate/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minSecretBytes         = 32
	recommendedSecretBytes = 48
	maxRecommendedTokenTTL = 7 * 24 * time.Hour
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService reviews the deployment for insecure or incomplete settings at
// start-up. All dependencies are optional; missing inputs degrade specific
// checks to warnings.
type AuditService struct {
	db  *gorm.DB
	jwt *iauth.JWTService
	cfg *app.Config
	now func() time.Time
}

func NewAuditService(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) *AuditService {
	return &AuditService{db: db, jwt: jwt, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used in results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkAdminPresent(ctx),
		s.checkJWTSecret(),
		s.checkTokenTTL(),
		s.checkEmailDelivery(),
		s.checkCORSOrigins(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

// Log writes every non-passing check at warn level and a summary at info.
func (r Result) Log(log *zap.Logger) {
	if log == nil {
		return
	}
	for _, check := range r.Checks {
		if check.Status == StatusPass {
			continue
		}
		log.Warn("security audit",
			zap.String("check", check.ID),
			zap.String("status", string(check.Status)),
			zap.String("message", check.Message),
			zap.String("remediation", check.Remediation),
		)
	}
	log.Info("security audit complete",
		zap.Int("pass", r.Summary[string(StatusPass)]),
		zap.Int("warn", r.Summary[string(StatusWarn)]),
		zap.Int("fail", r.Summary[string(StatusFail)]),
	)
}

func (s *AuditService) checkAdminPresent(ctx context.Context) Check {
	const id = "admin_present"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to confirm an administrator exists.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_admin = ? AND is_verified = ?", true, true).
		Count(&count).Error; err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "No verified administrator found; teachers cannot be managed.",
			Remediation: "Set TEACHERRATE_SEED_ADMIN_EMAIL and TEACHERRATE_SEED_ADMIN_PASSWORD to seed one.",
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (s *AuditService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if s.jwt == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "JWT service not initialised, unable to assess signing secret strength.",
			Remediation: "Initialise the JWT service with a strong secret.",
		}
	}

	length := s.jwt.SecretLength()
	switch {
	case length == 0:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Provide a cryptographically secure signing secret (>= 32 bytes).",
		}
	case length < minSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
			Details:     map[string]any{"length": length},
		}
	case length < recommendedSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of TEACHERRATE_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkTokenTTL() Check {
	const id = "access_token_ttl"
	if s.jwt == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "JWT service not initialised, unable to evaluate token lifetime.",
			Remediation: "Initialise the JWT service before running the audit.",
		}
	}

	ttl := s.jwt.AccessTokenTTL()
	if ttl > maxRecommendedTokenTTL {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommendedTokenTTL),
			Remediation: "Reduce TEACHERRATE_AUTH_JWT_ACCESS_TOKEN_TTL to 7 days or lower.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Access token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *AuditService) checkEmailDelivery() Check {
	const id = "email_delivery"
	if s.cfg == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Configuration not loaded, unable to verify email delivery.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	smtp := s.cfg.Email.SMTP
	switch {
	case !smtp.Enabled:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "SMTP is disabled; verification links are only written to the log.",
			Remediation: "Enable email.smtp so new accounts can verify their address.",
		}
	case !smtp.UseTLS:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "SMTP is configured without TLS.",
			Remediation: "Set email.smtp.use_tls to protect verification tokens in transit.",
		}
	default:
		return Check{ID: id, Status: StatusPass, Message: "SMTP delivery configured with TLS."}
	}
}

func (s *AuditService) checkCORSOrigins() Check {
	const id = "cors_origins"
	if s.cfg == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Configuration not loaded, unable to review CORS origins.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	origins := s.cfg.Server.CORS.AllowedOrigins
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			return Check{
				ID:          id,
				Status:      StatusWarn,
				Message:     "CORS allows every origin.",
				Remediation: "List the frontend origins in server.cors.allowed_origins.",
			}
		}
	}
	if len(origins) == 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "No CORS origins configured; every origin is allowed.",
			Remediation: "List the frontend origins in server.cors.allowed_origins.",
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "CORS restricted to configured origins.",
		Details: map[string]any{"origins": origins},
	}
}
