package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mossy-p/reception-signaling/pkg/logger"
	"github.com/mossy-p/reception-signaling/pkg/metrics"
	"github.com/mossy-p/reception-signaling/pkg/response"
)

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "INTERNAL_ERROR", payload.Error.Code)
}

func TestNotFoundHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.NoRoute(NotFoundHandler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "NOT_FOUND", payload.Error.Code)
	require.Contains(t, payload.Error.Message, "route /missing not found")
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	previous := logger.Logger()
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(previous) })
	return logs
}

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeLogs(t)

	r := gin.New()
	r.Use(Logger())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/api/calls/:callId", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/calls/nope", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "/health", fields["path"])
	require.EqualValues(t, http.StatusNoContent, fields["status"])
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestLoggerMiddlewareWebsocketUpgrades(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeLogs(t)

	r := gin.New()
	r.Use(Logger())
	r.GET("/ws/visitor", func(c *gin.Context) {
		MarkConnection(c, "conn-7", "visitor")
		c.Status(http.StatusSwitchingProtocols)
	})
	r.GET("/ws/staff", func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	})

	upgrade := func(path string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		return req
	}
	r.ServeHTTP(httptest.NewRecorder(), upgrade("/ws/visitor"))
	r.ServeHTTP(httptest.NewRecorder(), upgrade("/ws/staff"))

	require.Empty(t, logs.FilterMessage("request").All())

	opened := logs.FilterMessage("websocket upgraded").All()
	require.Len(t, opened, 1)
	fields := opened[0].ContextMap()
	require.Equal(t, "conn-7", fields["conn_id"])
	require.Equal(t, "visitor", fields["role"])
	require.Equal(t, "/ws/visitor", fields["path"])

	refused := logs.FilterMessage("websocket upgrade refused").All()
	require.Len(t, refused, 1)
	require.Equal(t, zapcore.WarnLevel, refused[0].Level)
	require.EqualValues(t, http.StatusUnauthorized, refused[0].ContextMap()["status"])
}

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/calls/:callId", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// labelled by route template, not raw path
	require.GreaterOrEqual(t, testutil.CollectAndCount(metrics.APILatency), 1)
	observed := metrics.APILatency.WithLabelValues(http.MethodGet, "/api/calls/:callId", "200")
	require.NotNil(t, observed)
}
