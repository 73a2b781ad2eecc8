package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Teacher{},
		&models.Rating{},
		&models.CacheEntry{},
	)
}

// SeedConfig describes optional start-up data.
type SeedConfig struct {
	Admin    *AdminSeed
	Teachers []models.Teacher
}

// AdminSeed describes a verified administrator account created on first start.
type AdminSeed struct {
	Name     string
	Email    string
	Password string
}

// SeedData inserts the configured administrator and teachers when they do not
// exist yet. Existing rows are left untouched.
func SeedData(db *gorm.DB, seed SeedConfig) error {
	if seed.Admin != nil {
		if err := seedAdmin(db, *seed.Admin); err != nil {
			return err
		}
	}

	for _, teacher := range seed.Teachers {
		teacher.AvgRating = 0
		if err := db.Where(models.Teacher{Name: teacher.Name}).Attrs(teacher).FirstOrCreate(&models.Teacher{}).Error; err != nil {
			return fmt.Errorf("seed teacher %q: %w", teacher.Name, err)
		}
	}

	return nil
}

func seedAdmin(db *gorm.DB, admin AdminSeed) error {
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if email == "" {
		return nil
	}
	if len(admin.Password) < 6 {
		return errors.New("seed admin: password must be at least 6 characters")
	}

	name := strings.TrimSpace(admin.Name)
	if name == "" {
		name = "Administrator"
	}

	hash, err := crypto.HashPassword(admin.Password)
	if err != nil {
		return fmt.Errorf("seed admin: hash password: %w", err)
	}

	user := models.User{
		Name:       name,
		Email:      email,
		Password:   hash,
		IsVerified: true,
		IsAdmin:    true,
	}
	if err := db.Where(models.User{Email: email}).Attrs(user).FirstOrCreate(&models.User{}).Error; err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

// DemoTeachers returns a small catalogue used to populate development databases.
func DemoTeachers() []models.Teacher {
	return []models.Teacher{
		{Name: "Alice Johnson", Role: "Lecturer", Unit: "Mathematics", Room: "A-101", Email: "alice.johnson@example.com"},
		{Name: "Bob Smith", Role: "Lecturer", Unit: "Physics", Room: "B-204", Email: "bob.smith@example.com"},
		{Name: "Carol Lee", Role: "Associate Professor", Unit: "Chemistry", Room: "C-112"},
		{Name: "David Kim", Role: "Lecturer", Unit: "Biology", Room: "C-310"},
		{Name: "Eva Green", Role: "Senior Lecturer", Unit: "History", Room: "D-015"},
		{Name: "Frank Liu", Role: "Lecturer", Unit: "English", Room: "D-118"},
	}
}
