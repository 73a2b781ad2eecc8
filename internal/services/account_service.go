package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/pkg/crypto"
	"github.com/charlesng35/teacherrate/pkg/logger"
	"github.com/charlesng35/teacherrate/pkg/metrics"
)

const (
	defaultVerificationTTL        = 24 * time.Hour
	defaultVerificationTokenBytes = 32

	maxNameLength     = 100
	maxEmailLength    = 100
	minPasswordLength = 6
	maxPasswordBytes  = 72
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// dummyPasswordHash is compared against when the email is unknown so that
// login timing does not reveal which addresses are registered.
const dummyPasswordHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z5u8pxUQYQ0ONm6yCmyhsuWa"

// VerificationNotifier delivers verification links to new accounts.
type VerificationNotifier interface {
	SendVerificationEmail(ctx context.Context, email, name, token string) error
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AccountOption customises the AccountService.
type AccountOption func(*AccountService)

// WithAccountClock injects a custom time source.
func WithAccountClock(clock func() time.Time) AccountOption {
	return func(s *AccountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithVerificationTTL overrides the verification token lifetime.
func WithVerificationTTL(d time.Duration) AccountOption {
	return func(s *AccountService) {
		if d > 0 {
			s.verificationTTL = d
		}
	}
}

// WithVerificationNotifier sets the collaborator that emails verification links.
func WithVerificationNotifier(notifier VerificationNotifier) AccountOption {
	return func(s *AccountService) {
		s.notifier = notifier
	}
}

// AccountService handles registration, email verification and credential checks.
type AccountService struct {
	gateway         repository.Gateway
	notifier        VerificationNotifier
	verificationTTL time.Duration
	now             func() time.Time
	log             *zap.Logger
}

// NewAccountService constructs an AccountService.
func NewAccountService(gateway repository.Gateway, opts ...AccountOption) (*AccountService, error) {
	if gateway == nil {
		return nil, errors.New("account service: gateway is required")
	}

	svc := &AccountService{
		gateway:         gateway,
		verificationTTL: defaultVerificationTTL,
		now:             time.Now,
		log:             logger.WithModule("account"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an unverified account and sends its verification link.
// Delivery failures are logged and do not fail the registration.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	name := cleanLine(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := validateRegistration(name, email, input.Password); err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if _, err := s.gateway.Users().FindByEmail(ctx, email); err == nil {
		metrics.Registrations.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: lookup email: %w", err)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}
	token, err := crypto.GenerateToken(defaultVerificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("account service: generate token: %w", err)
	}

	digest := crypto.HashToken(token)
	expires := s.now().Add(s.verificationTTL)
	user := &models.User{
		Name:                name,
		Email:               email,
		Password:            hashed,
		VerificationToken:   &digest,
		VerificationExpires: &expires,
	}

	if err := s.gateway.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.Registrations.WithLabelValues("duplicate").Inc()
			return nil, ErrDuplicateEmail
		}
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: create user: %w", err)
	}
	metrics.Registrations.WithLabelValues("created").Inc()

	if s.notifier != nil {
		if err := s.notifier.SendVerificationEmail(ctx, user.Email, user.Name, token); err != nil {
			s.log.Warn("verification email not sent",
				zap.Uint("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	return user, nil
}

// VerifyEmail consumes a verification token and marks its account verified.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	digest := crypto.HashToken(token)
	user, err := s.gateway.Users().FindByToken(ctx, digest)
	if err != nil {
		return nil, mapLookupError(err, ErrInvalidToken, "account service: find token")
	}
	if user.VerificationExpires != nil && user.VerificationExpires.Before(s.now()) {
		return nil, ErrTokenExpired
	}

	consumed, err := s.gateway.Users().MarkVerified(ctx, user.ID, digest)
	if err != nil {
		return nil, fmt.Errorf("account service: mark verified: %w", err)
	}
	if !consumed {
		return nil, ErrInvalidToken
	}

	user.IsVerified = true
	user.VerificationToken = nil
	user.VerificationExpires = nil

	s.log.Info("email verified", zap.Uint("user_id", user.ID))
	return user, nil
}

// Login checks credentials. Unknown emails and wrong passwords are reported
// identically; a correct password on an unverified account is not.
func (s *AccountService) Login(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.gateway.Users().FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("account service: lookup email: %w", err)
		}
		crypto.VerifyPassword(dummyPasswordHash, password)
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		metrics.AuthAttempts.WithLabelValues("unverified").Inc()
		return nil, ErrNotVerified
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return user, nil
}

// Me returns the profile of the given account.
func (s *AccountService) Me(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.gateway.Users().FindByID(ensureContext(ctx), userID)
	if err != nil {
		return nil, mapLookupError(err, ErrUserNotFound, "account service: load user")
	}
	return user, nil
}

func validateRegistration(name, email, password string) error {
	switch {
	case name == "":
		return validationError("name", "Name is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		return validationError("name", fmt.Sprintf("Name must be at most %d characters", maxNameLength))
	case email == "":
		return validationError("email", "Email is required")
	case utf8.RuneCountInString(email) > maxEmailLength:
		return validationError("email", fmt.Sprintf("Email must be at most %d characters", maxEmailLength))
	case !emailPattern.MatchString(email):
		return validationError("email", "Email address is invalid")
	case utf8.RuneCountInString(password) < minPasswordLength:
		return validationError("password", fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	case len(password) > maxPasswordBytes:
		return validationError("password", fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
