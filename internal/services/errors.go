package services

import (
	"net/http"

	apperrors "github.com/charlesng35/teacherrate/pkg/errors"
)

// Domain errors surfaced by the services. Each kind maps to a single HTTP
// status and is matched with errors.Is on its code.
var (
	ErrValidation = apperrors.New("VALIDATION_ERROR", "Invalid input", http.StatusBadRequest)

	ErrTeacherNotFound = apperrors.New("TEACHER_NOT_FOUND", "Teacher not found", http.StatusNotFound)
	ErrUserNotFound    = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	ErrRatingNotFound  = apperrors.New("RATING_NOT_FOUND", "Rating not found", http.StatusNotFound)

	ErrDuplicateEmail   = apperrors.New("DUPLICATE_EMAIL", "Email is already registered", http.StatusConflict)
	ErrDuplicateTeacher = apperrors.New("DUPLICATE_TEACHER", "A teacher with this name already exists", http.StatusConflict)
	ErrDuplicateRating  = apperrors.New("DUPLICATE_RATING", "You have already rated this teacher", http.StatusConflict)

	ErrForbidden = apperrors.New("FORBIDDEN", "You are not allowed to modify this rating", http.StatusForbidden)

	ErrInvalidToken = apperrors.New("INVALID_TOKEN", "Invalid verification token", http.StatusBadRequest)
	ErrTokenExpired = apperrors.New("TOKEN_EXPIRED", "Verification token has expired", http.StatusGone)
	ErrNotVerified  = apperrors.New("NOT_VERIFIED", "Please verify your email before logging in", http.StatusForbidden)

	ErrInvalidCredentials = apperrors.ErrInvalidCredentials
)

func validationError(field, message string) error {
	return ErrValidation.WithMessage(message).WithDetail("field", field)
}
