package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teacherrate/pkg/metrics"
)

func TestMetricsLabelsRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/teachers/:id", func(c *gin.Context) {
		require.Equal(t, float64(1), testutil.ToFloat64(metrics.RequestsInFlight))
		c.Status(http.StatusOK)
	})

	before := testutil.CollectAndCount(metrics.APILatency)
	require.Equal(t, http.StatusOK, serve(r, "/teachers/7", "").Code)
	require.Equal(t, http.StatusOK, serve(r, "/teachers/8", "").Code)
	require.Equal(t, http.StatusNotFound, serve(r, "/random/path", "").Code)
	require.Equal(t, http.StatusNotFound, serve(r, "/other/path", "").Code)

	require.Equal(t, before+2, testutil.CollectAndCount(metrics.APILatency))
	require.Zero(t, testutil.ToFloat64(metrics.RequestsInFlight))
}
