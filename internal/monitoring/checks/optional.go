package checks

import (
	"context"
	"time"

	"github.com/charlesng35/teacherrate/internal/monitoring"
)

// Pinger is implemented by optional backends such as the Redis cache and the
// Meilisearch index.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Optional returns a probe for a backend the service can run without. When
// the backend is disabled the probe reports up; when it was enabled but could
// not be initialised, or a ping fails, it reports degraded.
func Optional(name string, client Pinger, enabled bool, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck(name, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if !enabled {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: name + " disabled"}
		}
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: name + " unavailable"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		if err := client.Ping(probeCtx); err != nil {
			result := monitoring.ResultFromError(err, time.Since(start))
			result.Status = monitoring.StatusDegraded
			return result
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
