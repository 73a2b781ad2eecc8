package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/teacherrate/internal/models"
)

var teacherProfileColumns = []string{"name", "role", "unit", "address", "room", "email", "phone", "image"}

type teacherRepository struct {
	db *gorm.DB
}

func (r *teacherRepository) FindByID(ctx context.Context, id uint) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.WithContext(ensureContext(ctx)).First(&teacher, id).Error; err != nil {
		return nil, translate(err)
	}
	return &teacher, nil
}

func (r *teacherRepository) LockByID(ctx context.Context, id uint) (*models.Teacher, error) {
	var teacher models.Teacher
	err := r.db.WithContext(ensureContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&teacher, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &teacher, nil
}

func (r *teacherRepository) FindByName(ctx context.Context, name string) (*models.Teacher, error) {
	var teacher models.Teacher
	err := r.db.WithContext(ensureContext(ctx)).
		Where("name = ?", strings.TrimSpace(name)).
		First(&teacher).Error
	if err != nil {
		return nil, translate(err)
	}
	return &teacher, nil
}

func (r *teacherRepository) List(ctx context.Context, filter TeacherFilter) ([]models.Teacher, error) {
	query := r.db.WithContext(ensureContext(ctx)).Model(&models.Teacher{})

	if term := strings.ToLower(strings.TrimSpace(filter.NameContains)); term != "" {
		query = query.Where("LOWER(name) LIKE ? ESCAPE '!'", "%"+escapeLike(term)+"%")
	}

	switch filter.Sort {
	case SortByRating:
		query = query.Order("avg_rating DESC").Order("name ASC")
	default:
		query = query.Order("name ASC")
	}

	var teachers []models.Teacher
	if err := query.Find(&teachers).Error; err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

func (r *teacherRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.Teacher, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var teachers []models.Teacher
	if err := r.db.WithContext(ensureContext(ctx)).Where("id IN ?", ids).Find(&teachers).Error; err != nil {
		return nil, fmt.Errorf("list teachers by id: %w", err)
	}
	return teachers, nil
}

func (r *teacherRepository) ListIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ensureContext(ctx)).Model(&models.Teacher{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list teacher ids: %w", err)
	}
	return ids, nil
}

func (r *teacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if err := r.db.WithContext(ensureContext(ctx)).Omit("Ratings").Create(teacher).Error; err != nil {
		return fmt.Errorf("create teacher: %w", translate(err))
	}
	return nil
}

func (r *teacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	err := r.db.WithContext(ensureContext(ctx)).
		Model(&models.Teacher{ID: teacher.ID}).
		Select(teacherProfileColumns).
		Updates(teacher).Error
	if err != nil {
		return fmt.Errorf("update teacher %d: %w", teacher.ID, translate(err))
	}
	return nil
}

func (r *teacherRepository) UpdateAverage(ctx context.Context, id uint, avg float64) (int64, error) {
	result := r.db.WithContext(ensureContext(ctx)).
		Model(&models.Teacher{ID: id}).
		Update("avg_rating", avg)
	if result.Error != nil {
		return 0, fmt.Errorf("update teacher %d average: %w", id, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *teacherRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ensureContext(ctx)).Delete(&models.Teacher{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete teacher %d: %w", id, translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *teacherRepository) CountRatings(ctx context.Context, teacherID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ensureContext(ctx)).
		Model(&models.Rating{}).
		Where("teacher_id = ?", teacherID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count ratings for teacher %d: %w", teacherID, err)
	}
	return count, nil
}

func (r *teacherRepository) StatsFor(ctx context.Context, teacherIDs []uint) (map[uint]RatingStats, error) {
	stats := make(map[uint]RatingStats, len(teacherIDs))
	if len(teacherIDs) == 0 {
		return stats, nil
	}

	db := r.db.WithContext(ensureContext(ctx))
	counts := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.Rating{}).
		Select("COUNT(*)").
		Where("ratings.teacher_id = teachers.id")

	var rows []struct {
		TeacherID uint
		Average   float64
		Count     int64
	}
	err := db.Model(&models.Teacher{}).
		Select("teachers.id AS teacher_id, teachers.avg_rating AS average, (?) AS count", counts).
		Where("teachers.id IN ?", teacherIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("teacher stats: %w", err)
	}

	for _, row := range rows {
		stats[row.TeacherID] = RatingStats{Average: row.Average, Count: row.Count}
	}
	return stats, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return replacer.Replace(value)
}
