package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/teacherrate/internal/models"
)

type ratingRepository struct {
	db *gorm.DB
}

func (r *ratingRepository) base(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ensureContext(ctx)).Preload("User")
}

func (r *ratingRepository) FindByID(ctx context.Context, id uint) (*models.Rating, error) {
	var rating models.Rating
	if err := r.base(ctx).First(&rating, id).Error; err != nil {
		return nil, translate(err)
	}
	return &rating, nil
}

func (r *ratingRepository) FindByTeacher(ctx context.Context, teacherID uint) ([]models.Rating, error) {
	var ratings []models.Rating
	err := r.base(ctx).
		Where("teacher_id = ?", teacherID).
		Order("created_at DESC").Order("id DESC").
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("list ratings for teacher %d: %w", teacherID, err)
	}
	return ratings, nil
}

func (r *ratingRepository) FindByUser(ctx context.Context, userID uint) ([]models.Rating, error) {
	var ratings []models.Rating
	err := r.base(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("list ratings for user %d: %w", userID, err)
	}
	return ratings, nil
}

func (r *ratingRepository) FindByTeacherAndUser(ctx context.Context, teacherID, userID uint) (*models.Rating, error) {
	var rating models.Rating
	err := r.base(ctx).
		Where("teacher_id = ? AND user_id = ?", teacherID, userID).
		First(&rating).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rating, nil
}

func (r *ratingRepository) List(ctx context.Context) ([]models.Rating, error) {
	var ratings []models.Rating
	if err := r.base(ctx).Order("created_at DESC").Order("id DESC").Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return ratings, nil
}

func (r *ratingRepository) Create(ctx context.Context, rating *models.Rating) error {
	if err := r.db.WithContext(ensureContext(ctx)).Omit(clause.Associations).Create(rating).Error; err != nil {
		return fmt.Errorf("create rating: %w", translate(err))
	}
	return nil
}

func (r *ratingRepository) Update(ctx context.Context, rating *models.Rating) error {
	err := r.db.WithContext(ensureContext(ctx)).
		Model(&models.Rating{ID: rating.ID}).
		Updates(map[string]any{
			"rating":      rating.Score,
			"description": rating.Description,
		}).Error
	if err != nil {
		return fmt.Errorf("update rating %d: %w", rating.ID, translate(err))
	}
	return nil
}

func (r *ratingRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ensureContext(ctx)).Delete(&models.Rating{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete rating %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ratingRepository) DeleteByTeacher(ctx context.Context, teacherID uint) (int64, error) {
	result := r.db.WithContext(ensureContext(ctx)).Where("teacher_id = ?", teacherID).Delete(&models.Rating{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete ratings for teacher %d: %w", teacherID, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *ratingRepository) Stats(ctx context.Context, teacherID uint) (RatingStats, error) {
	var stats RatingStats
	err := r.db.WithContext(ensureContext(ctx)).
		Model(&models.Rating{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("teacher_id = ?", teacherID).
		Scan(&stats).Error
	if err != nil {
		return RatingStats{}, fmt.Errorf("rating stats for teacher %d: %w", teacherID, err)
	}
	return stats, nil
}
