// Package repository is the persistence gateway for users, teachers and
// ratings. Every repository returned from a Gateway shares its connection, so
// repositories handed to a WithTransaction callback run inside that
// transaction.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/charlesng35/teacherrate/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("repository: duplicate key")
)

// Gateway groups the entity repositories behind a single transactional handle.
type Gateway interface {
	Users() UserRepository
	Teachers() TeacherRepository
	Ratings() RatingRepository
	// WithTransaction runs fn inside a database transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTransaction(ctx context.Context, fn func(tx Gateway) error) error
}

// UserRepository persists accounts.
type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByToken(ctx context.Context, tokenDigest string) (*models.User, error)
	// MarkVerified consumes tokenDigest for the user. It reports false when the
	// token is no longer attached to that user.
	MarkVerified(ctx context.Context, id uint, tokenDigest string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	// ClearExpiredTokens drops outstanding verification tokens of unverified
	// accounts that expired before cutoff.
	ClearExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// TeacherSort selects the ordering of teacher listings.
type TeacherSort string

const (
	// SortByName orders teachers alphabetically.
	SortByName TeacherSort = "name"
	// SortByRating orders teachers by average rating, best first.
	SortByRating TeacherSort = "rating"
)

// TeacherFilter narrows teacher listings.
type TeacherFilter struct {
	// NameContains matches teachers whose name contains the value, case-insensitively.
	NameContains string
	Sort         TeacherSort
}

// TeacherRepository persists teachers and exposes rating counts.
type TeacherRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Teacher, error)
	// LockByID loads the teacher and holds its row lock until the surrounding
	// transaction ends. Every write to a teacher's average takes this lock first.
	LockByID(ctx context.Context, id uint) (*models.Teacher, error)
	FindByName(ctx context.Context, name string) (*models.Teacher, error)
	List(ctx context.Context, filter TeacherFilter) ([]models.Teacher, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.Teacher, error)
	ListIDs(ctx context.Context) ([]uint, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	// Update writes the descriptive columns of teacher. The average rating is
	// never written through this method.
	Update(ctx context.Context, teacher *models.Teacher) error
	// UpdateAverage stores avg for the teacher and reports the affected row count.
	UpdateAverage(ctx context.Context, id uint, avg float64) (int64, error)
	Delete(ctx context.Context, id uint) error
	CountRatings(ctx context.Context, teacherID uint) (int64, error)
	// StatsFor reads the stored average and the rating count of each teacher
	// in one statement. Unknown ids are absent from the result.
	StatsFor(ctx context.Context, teacherIDs []uint) (map[uint]RatingStats, error)
}

// RatingStats is the aggregate of a teacher's ratings.
type RatingStats struct {
	Average float64
	Count   int64
}

// RatingRepository persists ratings.
type RatingRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Rating, error)
	FindByTeacher(ctx context.Context, teacherID uint) ([]models.Rating, error)
	FindByUser(ctx context.Context, userID uint) ([]models.Rating, error)
	FindByTeacherAndUser(ctx context.Context, teacherID, userID uint) (*models.Rating, error)
	List(ctx context.Context) ([]models.Rating, error)
	Create(ctx context.Context, rating *models.Rating) error
	Update(ctx context.Context, rating *models.Rating) error
	Delete(ctx context.Context, id uint) error
	DeleteByTeacher(ctx context.Context, teacherID uint) (int64, error)
	// Stats computes average and count over the same row set.
	Stats(ctx context.Context, teacherID uint) (RatingStats, error)
}
