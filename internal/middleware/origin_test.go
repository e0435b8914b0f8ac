package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func originRouter(allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(OriginFilter(allowed))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestOriginFilter(t *testing.T) {
	r := originRouter("http://app.local")

	cases := []struct {
		name   string
		method string
		origin string
		status int
		cors   string
	}{
		{name: "no origin", method: http.MethodGet, status: http.StatusOK},
		{name: "allowed", method: http.MethodGet, origin: "http://app.local", status: http.StatusOK, cors: "http://app.local"},
		{name: "denied", method: http.MethodGet, origin: "http://evil.local", status: http.StatusForbidden},
		{name: "preflight", method: http.MethodOptions, origin: "http://app.local", status: http.StatusNoContent, cors: "http://app.local"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/ping", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			r.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)
			require.Equal(t, tc.cors, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestOriginFilterWildcard(t *testing.T) {
	r := originRouter("*")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://anything.local")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "http://anything.local", w.Header().Get("Access-Control-Allow-Origin"))
}
