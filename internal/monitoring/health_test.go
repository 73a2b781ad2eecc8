package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teacherrate/internal/monitoring"
)

func staticCheck(name string, status monitoring.ProbeStatus) monitoring.Check {
	return monitoring.NewCheck(name, func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: status}
	})
}

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(
		staticCheck("database", monitoring.StatusUp),
		staticCheck("redis", monitoring.StatusDown),
	)

	report := manager.Evaluate(context.Background())
	require.False(t, report.Ready)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "database", report.Checks[0].Component)
	require.Equal(t, "redis", report.Checks[1].Component)
}

func TestHealthManagerDegradedStaysReady(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(staticCheck("database", monitoring.StatusUp))
	manager.Register(staticCheck("search", monitoring.StatusDegraded))
	manager.Register(monitoring.Check{})

	report := manager.Evaluate(context.Background())
	require.True(t, report.Ready)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
}

func TestHealthManagerRecoversPanics(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(monitoring.NewCheck("boom", func(context.Context) monitoring.ProbeResult {
		panic("probe exploded")
	}))

	report := manager.Evaluate(context.Background())
	require.False(t, report.Ready)
	require.Equal(t, "boom", report.Checks[0].Component)
	require.Equal(t, "probe exploded", report.Checks[0].Details)
}

func TestHealthManagerEmpty(t *testing.T) {
	t.Parallel()

	var manager *monitoring.HealthManager
	report := manager.Evaluate(context.Background())
	require.True(t, report.Ready)
	require.Empty(t, report.Checks)

	result := monitoring.NewCheck("todo", nil).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestResultFromError(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, monitoring.ResultFromError(nil, time.Millisecond).Status)
	require.Equal(t, monitoring.StatusDown, monitoring.ResultFromError(errors.New("refused"), 0).Status)

	timeout := monitoring.ResultFromError(context.DeadlineExceeded, -time.Second)
	require.Equal(t, monitoring.StatusDegraded, timeout.Status)
	require.Zero(t, timeout.Duration)
}
