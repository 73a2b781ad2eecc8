package app

import (
	"strings"
	"time"

	"github.com/charlesng35/teacherrate/internal/cache"
	"github.com/charlesng35/teacherrate/internal/search"
)

const defaultTeacherCacheTTL = 5 * time.Minute

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// TeacherCacheTTL returns the lifetime of cached teacher reads.
func (c CacheConfig) TeacherCacheTTL() time.Duration {
	if c.TeacherTTL <= 0 {
		return defaultTeacherCacheTTL
	}
	return c.TeacherTTL
}

// MeiliClientConfig converts the search configuration into the search package representation.
func (c SearchConfig) MeiliClientConfig() search.MeiliConfig {
	return search.MeiliConfig{
		Host:   strings.TrimSpace(c.Meilisearch.Host),
		APIKey: c.Meilisearch.APIKey,
		Index:  strings.TrimSpace(c.Meilisearch.Index),
	}
}
