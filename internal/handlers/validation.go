package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teacherrate/internal/services"
	appErrors "github.com/charlesng35/teacherrate/pkg/errors"
	"github.com/charlesng35/teacherrate/pkg/response"
	appValidator "github.com/charlesng35/teacherrate/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if !bindJSON(c, dest) {
		return false
	}
	return validate(c, dest)
}

// bindJSON decodes the body only; field rules are left to the services.
func bindJSON[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	return true
}

// bindQuery binds query parameters into dest and validates them.
func bindQuery[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid query parameters"))
		return false
	}
	return validate(c, dest)
}

func validate(c *gin.Context, dest any) bool {
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, validationFailure(err))
		return false
	}
	return true
}

// validationFailure renders validator output as the domain validation error so
// clients see one error kind whether a rule lives in a handler or a service.
func validationFailure(err error) *appErrors.AppError {
	appErr := services.ErrValidation.WithMessage(formatValidationError(err))
	if ve, ok := err.(appValidator.ValidationErrors); ok {
		if first, ok := ve.First(); ok {
			appErr = appErr.WithDetail("field", first.Field)
		}
	}
	return appErr
}

func formatValidationError(err error) string {
	if ve, ok := err.(appValidator.ValidationErrors); ok && len(ve) > 0 {
		return ve.Error()
	}
	return "invalid request payload"
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// parseIDParam reads a positive numeric path parameter. A malformed id writes
// a 400 response and returns false.
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.Error(c, appErrors.NewBadRequest(fmt.Sprintf("invalid %s", name)).WithDetail("param", name))
		return 0, false
	}
	return uint(id), true
}
