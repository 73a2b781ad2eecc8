package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type gormGateway struct {
	db       *gorm.DB
	users    *userRepository
	teachers *teacherRepository
	ratings  *ratingRepository
}

// NewGormGateway returns a Gateway backed by db.
func NewGormGateway(db *gorm.DB) (Gateway, error) {
	if db == nil {
		return nil, errors.New("repository: db is required")
	}
	return newGormGateway(db), nil
}

func newGormGateway(db *gorm.DB) *gormGateway {
	return &gormGateway{
		db:       db,
		users:    &userRepository{db: db},
		teachers: &teacherRepository{db: db},
		ratings:  &ratingRepository{db: db},
	}
}

func (g *gormGateway) Users() UserRepository       { return g.users }
func (g *gormGateway) Teachers() TeacherRepository { return g.teachers }
func (g *gormGateway) Ratings() RatingRepository   { return g.ratings }

func (g *gormGateway) WithTransaction(ctx context.Context, fn func(tx Gateway) error) error {
	return g.db.WithContext(ensureContext(ctx)).Transaction(func(tx *gorm.DB) error {
		return fn(newGormGateway(tx))
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case IsUniqueConstraintError(err):
		return errors.Join(ErrDuplicate, err)
	default:
		return err
	}
}

// IsUniqueConstraintError detects database uniqueness constraint violations across vendors.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}
