package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/app"
	"github.com/charlesng35/teacherrate/internal/handlers"
	"github.com/charlesng35/teacherrate/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, db *gorm.DB, readiness *monitoring.HealthManager) {
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
		r.GET("/health/ready", handlers.Readiness(readiness))
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
}
