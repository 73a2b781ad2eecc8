// Package search keeps a full-text index of teacher profiles.
package search

import (
	"context"
	"errors"

	"github.com/charlesng35/teacherrate/internal/models"
)

// ErrUnavailable is returned by indexes that cannot answer queries.
var ErrUnavailable = errors.New("search: index unavailable")

// TeacherDocument is the indexed projection of a teacher profile.
type TeacherDocument struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	Unit      string  `json:"unit"`
	Room      string  `json:"room,omitempty"`
	Email     string  `json:"email,omitempty"`
	AvgRating float64 `json:"avg_rating"`
}

// NewTeacherDocument projects a teacher into its indexed form.
func NewTeacherDocument(t *models.Teacher) TeacherDocument {
	return TeacherDocument{
		ID:        t.ID,
		Name:      t.Name,
		Role:      t.Role,
		Unit:      t.Unit,
		Room:      t.Room,
		Email:     t.Email,
		AvgRating: t.AvgRating,
	}
}

// Index is the contract the teacher catalogue uses to stay searchable.
type Index interface {
	Configure(ctx context.Context) error
	Upsert(ctx context.Context, docs ...TeacherDocument) error
	Remove(ctx context.Context, id uint) error
	Search(ctx context.Context, query string, limit int) ([]uint, error)
}

// NoopIndex discards writes and reports ErrUnavailable for queries.
type NoopIndex struct{}

func (NoopIndex) Configure(context.Context) error { return nil }

func (NoopIndex) Upsert(context.Context, ...TeacherDocument) error { return nil }

func (NoopIndex) Remove(context.Context, uint) error { return nil }

func (NoopIndex) Search(context.Context, string, int) ([]uint, error) { return nil, ErrUnavailable }
