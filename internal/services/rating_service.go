package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/pkg/logger"
	"github.com/charlesng35/teacherrate/pkg/metrics"
)

// TeacherObserver is notified after a committed change affecting a teacher.
type TeacherObserver interface {
	TeacherChanged(ctx context.Context, teacherID uint)
}

// CreateRatingInput carries a new rating. Rating is a float so non-integer
// scores can be rejected rather than truncated during decoding.
type CreateRatingInput struct {
	Rating      *float64
	Description string
	TeacherID   uint
	UserID      *uint
}

// UpdateRatingInput is a partial update; nil fields are left untouched.
type UpdateRatingInput struct {
	Rating      *float64
	Description *string
}

// Actor identifies who is performing a mutation.
type Actor struct {
	UserID  uint
	IsAdmin bool
}

// RatingOption customises the RatingService.
type RatingOption func(*RatingService)

// WithTeacherObserver registers an observer for committed rating changes.
func WithTeacherObserver(observer TeacherObserver) RatingOption {
	return func(s *RatingService) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// RatingService manages the rating lifecycle and keeps teacher averages in step.
type RatingService struct {
	gateway   repository.Gateway
	aggregate *AggregateService
	observer  TeacherObserver
	log       *zap.Logger
}

// NewRatingService constructs a RatingService.
func NewRatingService(gateway repository.Gateway, aggregate *AggregateService, opts ...RatingOption) (*RatingService, error) {
	if gateway == nil {
		return nil, errors.New("rating service: gateway is required")
	}
	if aggregate == nil {
		return nil, errors.New("rating service: aggregate service is required")
	}

	svc := &RatingService{
		gateway:   gateway,
		aggregate: aggregate,
		log:       logger.WithModule("rating"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateOrUpsert stores a rating. When the user already rated the teacher the
// existing row is updated instead. The teacher average is recomputed in the
// same transaction.
func (s *RatingService) CreateOrUpsert(ctx context.Context, input CreateRatingInput) (*models.Rating, error) {
	ctx = ensureContext(ctx)

	score, err := validateScore(input.Rating)
	if err != nil {
		return nil, err
	}
	description, err := validateDescription(input.Description)
	if err != nil {
		return nil, err
	}

	if _, err := s.gateway.Teachers().FindByID(ctx, input.TeacherID); err != nil {
		return nil, mapLookupError(err, ErrTeacherNotFound, "rating service: load teacher")
	}

	userID := input.UserID
	if userID != nil && *userID == 0 {
		userID = nil
	}
	if userID != nil {
		if _, err := s.gateway.Users().FindByID(ctx, *userID); err != nil {
			return nil, mapLookupError(err, ErrUserNotFound, "rating service: load user")
		}
	}

	var (
		ratingID  uint
		operation string
	)
	attempt := func() error {
		return s.gateway.WithTransaction(ctx, func(tx repository.Gateway) error {
			id, op, err := s.upsert(ctx, tx, input.TeacherID, userID, score, description)
			if err != nil {
				return err
			}
			ratingID, operation = id, op
			return nil
		})
	}

	err = attempt()
	if errors.Is(err, repository.ErrDuplicate) {
		// A concurrent insert won; the retry finds its row and updates it.
		s.log.Debug("rating insert lost race, retrying",
			zap.Uint("teacher_id", input.TeacherID),
		)
		err = attempt()
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrDuplicateRating.WithInternal(err)
	}
	if err != nil {
		return nil, err
	}

	metrics.RatingMutations.WithLabelValues(operation).Inc()
	s.notify(ctx, input.TeacherID)

	return s.reload(ctx, ratingID)
}

func (s *RatingService) upsert(ctx context.Context, tx repository.Gateway, teacherID uint, userID *uint, score int, description string) (uint, string, error) {
	if _, err := lockTeacher(ctx, tx, teacherID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, "", ErrTeacherNotFound
		}
		return 0, "", err
	}

	if userID != nil {
		existing, err := tx.Ratings().FindByTeacherAndUser(ctx, teacherID, *userID)
		switch {
		case err == nil:
			existing.Score = score
			existing.Description = description
			if err := tx.Ratings().Update(ctx, existing); err != nil {
				return 0, "", fmt.Errorf("rating service: update existing: %w", err)
			}
			if _, err := s.aggregate.recompute(ctx, tx, teacherID, triggerMutation); err != nil {
				return 0, "", err
			}
			return existing.ID, "upsert", nil
		case !errors.Is(err, repository.ErrNotFound):
			return 0, "", fmt.Errorf("rating service: find existing: %w", err)
		}
	}

	rating := &models.Rating{
		Score:       score,
		Description: description,
		TeacherID:   teacherID,
		UserID:      userID,
	}
	if err := tx.Ratings().Create(ctx, rating); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return 0, "", err
		}
		return 0, "", fmt.Errorf("rating service: create: %w", err)
	}
	if _, err := s.aggregate.recompute(ctx, tx, teacherID, triggerMutation); err != nil {
		return 0, "", err
	}
	return rating.ID, "create", nil
}

// Update applies patch to a rating owned by userID.
func (s *RatingService) Update(ctx context.Context, id, userID uint, patch UpdateRatingInput) (*models.Rating, error) {
	ctx = ensureContext(ctx)

	rating, err := s.gateway.Ratings().FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, ErrRatingNotFound, "rating service: load rating")
	}
	if !rating.AuthoredBy(userID) {
		return nil, ErrForbidden
	}

	scoreChanged := false
	if patch.Rating != nil {
		score, err := validateScore(patch.Rating)
		if err != nil {
			return nil, err
		}
		scoreChanged = score != rating.Score
		rating.Score = score
	}
	if patch.Description != nil {
		description, err := validateDescription(*patch.Description)
		if err != nil {
			return nil, err
		}
		rating.Description = description
	}

	err = s.gateway.WithTransaction(ctx, func(tx repository.Gateway) error {
		if _, err := lockTeacher(ctx, tx, rating.TeacherID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRatingNotFound
			}
			return err
		}
		if err := tx.Ratings().Update(ctx, rating); err != nil {
			return fmt.Errorf("rating service: update: %w", err)
		}
		if !scoreChanged {
			return nil
		}
		_, err := s.aggregate.recompute(ctx, tx, rating.TeacherID, triggerMutation)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RatingMutations.WithLabelValues("update").Inc()
	s.notify(ctx, rating.TeacherID)

	return s.reload(ctx, rating.ID)
}

// Delete removes a rating. Only its author or an administrator may delete it;
// anonymous ratings are administrator-only.
func (s *RatingService) Delete(ctx context.Context, id uint, actor Actor) error {
	ctx = ensureContext(ctx)

	rating, err := s.gateway.Ratings().FindByID(ctx, id)
	if err != nil {
		return mapLookupError(err, ErrRatingNotFound, "rating service: load rating")
	}
	if !actor.IsAdmin && !rating.AuthoredBy(actor.UserID) {
		return ErrForbidden
	}

	teacherID := rating.TeacherID
	err = s.gateway.WithTransaction(ctx, func(tx repository.Gateway) error {
		if teacherID != 0 {
			if _, err := lockTeacher(ctx, tx, teacherID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		if err := tx.Ratings().Delete(ctx, rating.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRatingNotFound
			}
			return fmt.Errorf("rating service: delete: %w", err)
		}
		if teacherID == 0 {
			return nil
		}
		_, err := s.aggregate.recompute(ctx, tx, teacherID, triggerMutation)
		return err
	})
	if err != nil {
		return err
	}

	metrics.RatingMutations.WithLabelValues("delete").Inc()
	s.notify(ctx, teacherID)
	return nil
}

// Get returns a single rating.
func (s *RatingService) Get(ctx context.Context, id uint) (*models.Rating, error) {
	rating, err := s.gateway.Ratings().FindByID(ensureContext(ctx), id)
	if err != nil {
		return nil, mapLookupError(err, ErrRatingNotFound, "rating service: load rating")
	}
	return rating, nil
}

// List returns every rating, newest first.
func (s *RatingService) List(ctx context.Context) ([]models.Rating, error) {
	ratings, err := s.gateway.Ratings().List(ensureContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("rating service: list: %w", err)
	}
	return ratings, nil
}

// ListByTeacher returns the ratings of a teacher, newest first.
func (s *RatingService) ListByTeacher(ctx context.Context, teacherID uint) ([]models.Rating, error) {
	ctx = ensureContext(ctx)
	if _, err := s.gateway.Teachers().FindByID(ctx, teacherID); err != nil {
		return nil, mapLookupError(err, ErrTeacherNotFound, "rating service: load teacher")
	}
	ratings, err := s.gateway.Ratings().FindByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("rating service: list by teacher: %w", err)
	}
	return ratings, nil
}

// ListByUser returns the ratings written by a user, newest first.
func (s *RatingService) ListByUser(ctx context.Context, userID uint) ([]models.Rating, error) {
	ctx = ensureContext(ctx)
	if _, err := s.gateway.Users().FindByID(ctx, userID); err != nil {
		return nil, mapLookupError(err, ErrUserNotFound, "rating service: load user")
	}
	ratings, err := s.gateway.Ratings().FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rating service: list by user: %w", err)
	}
	return ratings, nil
}

func (s *RatingService) reload(ctx context.Context, id uint) (*models.Rating, error) {
	rating, err := s.gateway.Ratings().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("rating service: reload rating %d: %w", id, err)
	}
	return rating, nil
}

func (s *RatingService) notify(ctx context.Context, teacherID uint) {
	if s.observer == nil || teacherID == 0 {
		return
	}
	s.observer.TeacherChanged(ctx, teacherID)
}

func validateScore(value *float64) (int, error) {
	if value == nil {
		return 0, validationError("rating", "Rating is required")
	}
	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, validationError("rating", "Rating must be a whole number")
	}
	if v < models.MinRatingScore || v > models.MaxRatingScore {
		return 0, validationError("rating", fmt.Sprintf("Rating must be between %d and %d", models.MinRatingScore, models.MaxRatingScore))
	}
	return int(v), nil
}

func validateDescription(value string) (string, error) {
	description := strings.TrimSpace(value)
	if description == "" {
		return "", validationError("description", "Description is required")
	}
	if utf8.RuneCountInString(description) > models.MaxRatingDescriptionLength {
		return "", validationError("description", fmt.Sprintf("Description must be at most %d characters", models.MaxRatingDescriptionLength))
	}
	return description, nil
}

// mapLookupError converts a repository miss into notFound and wraps anything
// else as an infrastructure failure.
func mapLookupError(err, notFound error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
