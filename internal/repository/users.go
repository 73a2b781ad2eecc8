package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/models"
)

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ensureContext(ctx)).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ensureContext(ctx)).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) FindByToken(ctx context.Context, tokenDigest string) (*models.User, error) {
	if strings.TrimSpace(tokenDigest) == "" {
		return nil, ErrNotFound
	}
	var user models.User
	err := r.db.WithContext(ensureContext(ctx)).
		Where("verification_token = ?", tokenDigest).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) MarkVerified(ctx context.Context, id uint, tokenDigest string) (bool, error) {
	result := r.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("id = ? AND verification_token = ?", id, tokenDigest).
		Updates(map[string]any{
			"is_verified":          true,
			"verification_token":   nil,
			"verification_expires": nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("mark user %d verified: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ensureContext(ctx)).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ensureContext(ctx)).Save(user).Error; err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, translate(err))
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ensureContext(ctx)).Delete(&models.User{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete user %d: %w", id, translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) ClearExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("is_verified = ? AND verification_expires IS NOT NULL AND verification_expires < ?", false, cutoff).
		Updates(map[string]any{
			"verification_token":   nil,
			"verification_expires": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("clear expired tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
