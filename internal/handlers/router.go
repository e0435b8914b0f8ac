package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossy-p/reception-signaling/config"
	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/internal/middleware"
	"github.com/mossy-p/reception-signaling/internal/models"
	"github.com/mossy-p/reception-signaling/internal/registry"
	"github.com/mossy-p/reception-signaling/internal/signaling"
	"github.com/mossy-p/reception-signaling/pkg/response"
)

// Dependencies wires the router. History, Finders and Presence are optional.
type Dependencies struct {
	Config   *config.Config
	Registry *registry.Registry
	Queue    *calls.Queue
	Hub      *signaling.Hub
	History  CallHistory
	Finders  []CallFinder
	Presence Presence
}

// NewRouter builds the HTTP and websocket surface.
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.Recovery(), middleware.Logger(), middleware.Metrics())
	router.Use(middleware.OriginFilter(cfg.Server.AllowedOrigins))
	router.NoRoute(middleware.NotFoundHandler)
	router.NoMethod(middleware.MethodNotAllowedHandler)

	router.GET("/health", health(deps.Registry, deps.Queue))
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	auth := middleware.JWTAuth(cfg.Auth.JWTSecret)
	authHandler := NewAuthHandler(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	callHandler := NewCallHandler(deps.Queue, deps.History, deps.Finders...)
	staffHandler := NewStaffHandler(deps.Registry, deps.Presence)

	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)

		api.GET("/calls/waiting", auth, callHandler.ListWaiting)
		api.GET("/calls/history", auth, callHandler.History)
		api.GET("/calls/:callId", auth, callHandler.Get)

		api.GET("/staff/online", auth, staffHandler.Online)
	}

	sockets := NewSocketHandler(deps.Hub, cfg.WebSocket.SendBuffer, deps.Presence)
	ws := router.Group("/ws")
	{
		ws.GET("/visitor", sockets.Visitor)
		ws.GET("/staff", auth, sockets.Staff)
	}

	return router
}

func health(reg *registry.Registry, queue *calls.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{
			"status":   "ok",
			"visitors": reg.Count(models.RoleVisitor),
			"staff":    reg.Count(models.RoleStaff),
			"waiting":  len(queue.ListWaiting()),
		})
	}
}
