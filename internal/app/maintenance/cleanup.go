package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/pkg/logger"
)

const (
	defaultTokenRetention = 7 * 24 * time.Hour
	defaultTokenSpec      = "@every 1h"
	defaultReconcileSpec  = "@every 6h"
	defaultCachePurgeSpec = "@every 15m"
)

// Reconciler recomputes every teacher's average rating.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// CachePurger drops cache entries whose expiry has passed.
type CachePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner coordinates background maintenance tasks such as clearing stale
// verification tokens, reconciling average ratings, and purging the cache table.
type Cleaner struct {
	gateway    repository.Gateway
	reconciler Reconciler
	purger     CachePurger
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger
	retention  time.Duration

	tokenSchedule      string
	reconcileSchedule  string
	cachePurgeSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenRetention adjusts how long expired verification tokens are kept.
func WithTokenRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithReconcileSchedule overrides the cron specification for average reconciliation.
func WithReconcileSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.reconcileSchedule = spec
		}
	}
}

// WithCachePurgeSchedule overrides the cron specification for cache purging.
func WithCachePurgeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cachePurgeSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding job being skipped.
func NewCleaner(gateway repository.Gateway, reconciler Reconciler, purger CachePurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		gateway:            gateway,
		reconciler:         reconciler,
		purger:             purger,
		now:                time.Now,
		retention:          defaultTokenRetention,
		tokenSchedule:      defaultTokenSpec,
		reconcileSchedule:  defaultReconcileSpec,
		cachePurgeSchedule: defaultCachePurgeSpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) enabled() bool {
	return c.gateway != nil || c.reconciler != nil || c.purger != nil
}

// Start registers the jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled() {
		return nil
	}

	if c.gateway != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			if _, err := c.clearTokens(context.Background()); err != nil {
				c.log.Warn("token cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule token cleanup: %w", err)
		}
	}

	if c.reconciler != nil {
		if _, err := c.cron.AddFunc(c.reconcileSchedule, func() {
			if _, err := c.reconcile(context.Background()); err != nil {
				c.log.Warn("rating reconciliation failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule reconciliation: %w", err)
		}
	}

	if c.purger != nil {
		if _, err := c.cron.AddFunc(c.cachePurgeSchedule, func() {
			if _, err := c.purgeCache(context.Background()); err != nil {
				c.log.Warn("cache purge failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule cache purge: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured jobs sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.gateway != nil {
		if _, err := c.clearTokens(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.reconciler != nil {
		if _, err := c.reconcile(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.purger != nil {
		if _, err := c.purgeCache(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) clearTokens(ctx context.Context) (int64, error) {
	cleared, err := ClearStaleTokens(ctx, c.gateway, c.now().Add(-c.retention))
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		c.log.Info("cleared stale verification tokens", zap.Int64("count", cleared))
	}
	return cleared, nil
}

func (c *Cleaner) reconcile(ctx context.Context) (int, error) {
	corrected, err := c.reconciler.ReconcileAll(ctx)
	if err != nil {
		return corrected, fmt.Errorf("maintenance: reconcile ratings: %w", err)
	}
	if corrected > 0 {
		c.log.Info("reconciled teacher averages", zap.Int("corrected", corrected))
	}
	return corrected, nil
}

func (c *Cleaner) purgeCache(ctx context.Context) (int64, error) {
	purged, err := c.purger.PurgeExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("maintenance: purge cache: %w", err)
	}
	if purged > 0 {
		c.log.Debug("purged expired cache entries", zap.Int64("count", purged))
	}
	return purged, nil
}

// ClearStaleTokens drops verification tokens of unverified accounts that
// expired before cutoff. The accounts themselves are kept.
func ClearStaleTokens(ctx context.Context, gateway repository.Gateway, cutoff time.Time) (int64, error) {
	if gateway == nil {
		return 0, errors.New("cleanup tokens: gateway is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cleared, err := gateway.Users().ClearExpiredTokens(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup tokens: %w", err)
	}
	return cleared, nil
}
