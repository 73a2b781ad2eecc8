// Package auth issues and validates the bearer tokens handed out at login.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL applies when JWTConfig leaves the lifetime unset.
const DefaultAccessTokenTTL = 24 * time.Hour

// clockSkew tolerates small drift between replicas when checking exp/nbf.
const clockSkew = 30 * time.Second

var (
	ErrEmptyToken     = errors.New("jwt: token string is empty")
	ErrInvalidIssuer  = errors.New("jwt: invalid issuer")
	ErrMissingSubject = errors.New("jwt: missing user id claim")
)

// JWTConfig configures a JWTService. Clock is for tests.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims carried by an access token. The subject repeats the user id.
type Claims struct {
	UserID  uint `json:"uid"`
	IsAdmin bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

type AccessTokenInput struct {
	UserID  uint
	IsAdmin bool
}

// JWTService signs HS256 access tokens with a shared secret.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	svc := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(svc.now),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
	}
	if svc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(svc.issuer))
	}
	svc.parser = jwt.NewParser(opts...)

	return svc, nil
}

// SecretLength reports the signing secret size in bytes.
func (s *JWTService) SecretLength() int {
	if s == nil {
		return 0
	}
	return len(s.secret)
}

func (s *JWTService) AccessTokenTTL() time.Duration {
	if s == nil {
		return 0
	}
	return s.ttl
}

// GenerateAccessToken signs a token for input.UserID and returns it with its
// expiry.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, time.Time, error) {
	if input.UserID == 0 {
		return "", time.Time{}, errors.New("jwt: user id is required")
	}

	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:  input.UserID,
		IsAdmin: input.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(input.UserID), 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken verifies signature, lifetime and issuer. Failures wrap
// the jwt package's sentinel errors (jwt.ErrTokenExpired and friends).
func (s *JWTService) ValidateAccessToken(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	var claims Claims
	if _, err := s.parser.ParseWithClaims(token, &claims, s.key); err != nil {
		if errors.Is(err, jwt.ErrTokenInvalidIssuer) {
			return nil, ErrInvalidIssuer
		}
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}
	if claims.UserID == 0 || claims.Subject != strconv.FormatUint(uint64(claims.UserID), 10) {
		return nil, ErrMissingSubject
	}
	return &claims, nil
}

func (s *JWTService) key(*jwt.Token) (any, error) {
	return s.secret, nil
}
