package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/monitoring"
)

const defaultTimeout = 2 * time.Second

// Database returns a probe that pings the database handle. The database is
// required, so any failure reports the component down.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return down(err, start)
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return down(err, start)
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}

func down(err error, start time.Time) monitoring.ProbeResult {
	result := monitoring.ResultFromError(err, time.Since(start))
	result.Status = monitoring.StatusDown
	return result
}

func chooseTimeout(provided time.Duration) time.Duration {
	if provided <= 0 {
		return defaultTimeout
	}
	return provided
}
