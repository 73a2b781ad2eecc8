package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/monitoring"

	appErrors "github.com/charlesng35/teacherrate/pkg/errors"
	"github.com/charlesng35/teacherrate/pkg/response"
)

const healthPingTimeout = 2 * time.Second

// Health returns a status payload useful for readiness checks. When db is
// non-nil the database is pinged and an unreachable database yields a 503.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			response.Success(c, http.StatusOK, gin.H{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(requestContext(c), healthPingTimeout)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			response.Error(c, appErrors.New("SERVICE_UNAVAILABLE", "Database unavailable", http.StatusServiceUnavailable).WithInternal(err))
			return
		}

		response.Success(c, http.StatusOK, gin.H{"status": "ok", "database": "ok"})
	}
}

// Readiness evaluates every registered dependency probe. Degraded optional
// backends still report ready; a down dependency yields a 503 whose details
// carry the individual probe results.
func Readiness(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))
		if !report.Ready {
			response.Error(c, appErrors.New("SERVICE_UNAVAILABLE", "Service not ready", http.StatusServiceUnavailable).
				WithDetail("checks", report.Checks))
			return
		}
		response.Success(c, http.StatusOK, report)
	}
}
