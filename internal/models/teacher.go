package models

import "time"

// Teacher is a rateable staff member. AvgRating is derived from the teacher's
// ratings and is only written by the aggregate recalculator.
type Teacher struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Role    string `gorm:"size:100;not null" json:"role"`
	Unit    string `gorm:"size:100;not null" json:"unit"`
	Address string `gorm:"size:500" json:"address,omitempty"`
	Room    string `gorm:"size:50" json:"room,omitempty"`
	Email   string `gorm:"size:100" json:"email,omitempty"`
	Phone   string `gorm:"size:50" json:"phone,omitempty"`
	Image   string `gorm:"size:255" json:"image,omitempty"`

	AvgRating float64 `gorm:"type:decimal(3,2);not null;default:0" json:"avg_rating"`

	Ratings []Rating `gorm:"foreignKey:TeacherID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeacherWithStats decorates a teacher with its rating count.
type TeacherWithStats struct {
	Teacher
	RatingCount int64 `json:"rating_count"`
}
