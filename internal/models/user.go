package models

import "time"

// User is a registered account. Accounts start unverified and become verified
// once the emailed verification token is consumed.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:100;not null" json:"name"`
	Email    string `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	IsVerified bool `gorm:"not null;default:false" json:"is_verified"`
	IsAdmin    bool `gorm:"not null;default:false" json:"is_admin"`

	// VerificationToken holds the SHA-256 digest of the outstanding token.
	VerificationToken   *string    `gorm:"size:64;uniqueIndex" json:"-"`
	VerificationExpires *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSummary is the public projection of a user embedded in ratings.
type UserSummary struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `json:"name"`
}

// TableName maps the summary onto the users table.
func (UserSummary) TableName() string {
	return "users"
}
