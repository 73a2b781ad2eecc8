package models

import "time"

const (
	// MinRatingScore is the lowest accepted score.
	MinRatingScore = 1
	// MaxRatingScore is the highest accepted score.
	MaxRatingScore = 5
	// MaxRatingDescriptionLength bounds the trimmed description in characters.
	MaxRatingDescriptionLength = 400
)

// Rating is a single score with a comment left for a teacher. A nil UserID
// marks an anonymous rating. At most one rating exists per (teacher, user).
type Rating struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Score       int    `gorm:"column:rating;not null;check:chk_ratings_score,rating >= 1 AND rating <= 5" json:"rating"`
	Description string `gorm:"size:400;not null" json:"description"`

	TeacherID uint  `gorm:"not null;index;uniqueIndex:idx_ratings_teacher_user,priority:1" json:"teacher_id"`
	UserID    *uint `gorm:"index;uniqueIndex:idx_ratings_teacher_user,priority:2" json:"user_id"`

	User *UserSummary `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// AuthoredBy reports whether userID is the rating's author. Anonymous
// ratings have no author.
func (r *Rating) AuthoredBy(userID uint) bool {
	return r != nil && r.UserID != nil && userID != 0 && *r.UserID == userID
}
