package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mossy-p/reception-signaling/pkg/logger"
)

// Socket handlers record the connection they registered under these keys so
// the access log can tie an upgrade to the hub's conn_id.
const (
	ContextKeyConnID = "conn_id"
	ContextKeyRole   = "conn_role"
)

// MarkConnection records the registered connection on the request context.
func MarkConnection(c *gin.Context, connID, role string) {
	c.Set(ContextKeyConnID, connID)
	c.Set(ContextKeyRole, role)
}

// Logger writes one structured line per request. Websocket upgrades are
// logged with the connection they opened instead of an HTTP status, since the
// handler returns as soon as the pumps start.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		log := logger.WithModule("http")

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		}
		if claims, ok := ClaimsFrom(c); ok {
			fields = append(fields, zap.String("user_id", claims.UserID))
		}

		if c.IsWebsocket() {
			connID := c.GetString(ContextKeyConnID)
			if connID == "" {
				log.Warn("websocket upgrade refused", append(fields, zap.Int("status", c.Writer.Status()))...)
				return
			}
			log.Info("websocket upgraded", append(fields,
				zap.String("conn_id", connID),
				zap.String("role", c.GetString(ContextKeyRole)),
			)...)
			return
		}

		status := c.Writer.Status()
		fields = append(fields,
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		)
		if ce := log.Check(levelFor(status), "request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
