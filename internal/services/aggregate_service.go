package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/pkg/logger"
	"github.com/charlesng35/teacherrate/pkg/metrics"
)

const (
	triggerMutation  = "mutation"
	triggerReconcile = "reconcile"
)

// AggregateService keeps Teacher.AvgRating consistent with the teacher's ratings.
type AggregateService struct {
	gateway repository.Gateway
	log     *zap.Logger
}

// NewAggregateService constructs an AggregateService.
func NewAggregateService(gateway repository.Gateway) (*AggregateService, error) {
	if gateway == nil {
		return nil, errors.New("aggregate service: gateway is required")
	}
	return &AggregateService{gateway: gateway, log: logger.WithModule("aggregate")}, nil
}

// RecomputeTeacherAverage recalculates and stores the average score of a
// teacher under its row lock. A teacher that no longer exists is not an error.
func (s *AggregateService) RecomputeTeacherAverage(ctx context.Context, teacherID uint) (float64, error) {
	ctx = ensureContext(ctx)
	var avg float64
	err := s.gateway.WithTransaction(ctx, func(tx repository.Gateway) error {
		if _, err := lockTeacher(ctx, tx, teacherID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.log.Debug("average not stored, teacher missing", zap.Uint("teacher_id", teacherID))
				return nil
			}
			return err
		}
		var err error
		avg, err = s.recompute(ctx, tx, teacherID, triggerMutation)
		return err
	})
	if err != nil {
		return 0, err
	}
	return avg, nil
}

// RatingCount returns the number of ratings counted in the teacher's average.
func (s *AggregateService) RatingCount(ctx context.Context, teacherID uint) (int64, error) {
	stats, err := s.gateway.Ratings().Stats(ensureContext(ctx), teacherID)
	if err != nil {
		return 0, fmt.Errorf("aggregate service: count ratings: %w", err)
	}
	return stats.Count, nil
}

// ReconcileAll recomputes the average of every teacher and returns how many
// stored values were corrected.
func (s *AggregateService) ReconcileAll(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	ids, err := s.gateway.Teachers().ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregate service: list teachers: %w", err)
	}

	corrected := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return corrected, err
		}
		fixed, err := s.reconcile(ctx, id)
		if err != nil {
			return corrected, err
		}
		if fixed {
			corrected++
		}
	}
	return corrected, nil
}

// reconcile recomputes one teacher under its row lock and reports whether the
// stored average was wrong.
func (s *AggregateService) reconcile(ctx context.Context, teacherID uint) (bool, error) {
	fixed := false
	err := s.gateway.WithTransaction(ctx, func(tx repository.Gateway) error {
		teacher, err := lockTeacher(ctx, tx, teacherID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		avg, err := s.recompute(ctx, tx, teacherID, triggerReconcile)
		if err != nil {
			return err
		}
		if avg != teacher.AvgRating {
			fixed = true
			s.log.Info("corrected stale average",
				zap.Uint("teacher_id", teacherID),
				zap.Float64("stored", teacher.AvgRating),
				zap.Float64("actual", avg),
			)
		}
		return nil
	})
	return fixed, err
}

// lockTeacher takes the row lock that serializes writes to a teacher's
// average. repository.ErrNotFound is returned unwrapped.
func lockTeacher(ctx context.Context, tx repository.Gateway, teacherID uint) (*models.Teacher, error) {
	teacher, err := tx.Teachers().LockByID(ctx, teacherID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, repository.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("aggregate service: lock teacher %d: %w", teacherID, err)
	}
	return teacher, nil
}

// recompute runs against tx, which must already hold the teacher lock.
func (s *AggregateService) recompute(ctx context.Context, tx repository.Gateway, teacherID uint, trigger string) (float64, error) {
	stats, err := tx.Ratings().Stats(ctx, teacherID)
	if err != nil {
		return 0, fmt.Errorf("aggregate service: rating stats: %w", err)
	}

	avg := roundAverage(stats.Average)
	if stats.Count == 0 {
		avg = 0
	}

	rows, err := tx.Teachers().UpdateAverage(ctx, teacherID, avg)
	if err != nil {
		return 0, fmt.Errorf("aggregate service: store average: %w", err)
	}
	if rows == 0 {
		s.log.Debug("average not stored, teacher missing", zap.Uint("teacher_id", teacherID))
	}

	metrics.AggregateRecomputes.WithLabelValues(trigger).Inc()
	return avg, nil
}

func roundAverage(value float64) float64 {
	return math.Round(value*100) / 100
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
