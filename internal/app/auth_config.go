package app

import (
	"time"

	"github.com/charlesng35/teacherrate/internal/auth"
)

const defaultVerificationTTL = 24 * time.Hour

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// VerificationTTL reports how long an emailed verification token stays valid.
func (c AuthConfig) VerificationTTL() time.Duration {
	if c.Verification.TokenTTL <= 0 {
		return defaultVerificationTTL
	}
	return c.Verification.TokenTTL
}
