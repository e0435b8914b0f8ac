package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mossy-p/reception-signaling/internal/models"
	"github.com/mossy-p/reception-signaling/internal/registry"
	"github.com/mossy-p/reception-signaling/pkg/logger"
	"github.com/mossy-p/reception-signaling/pkg/response"
)

// StaffHandler reports who is on duty.
type StaffHandler struct {
	registry *registry.Registry
	presence Presence
	log      *zap.Logger
}

// NewStaffHandler builds a StaffHandler. presence may be nil.
func NewStaffHandler(reg *registry.Registry, presence Presence) *StaffHandler {
	return &StaffHandler{registry: reg, presence: presence, log: logger.WithModule("staff-api")}
}

// Online lists online staff. With presence configured the list spans every
// instance; otherwise only this instance's connections are reported.
func (h *StaffHandler) Online(c *gin.Context) {
	if h.presence != nil {
		members, err := h.presence.Members(c.Request.Context())
		if err == nil {
			response.Success(c, http.StatusOK, gin.H{"staff": members, "source": "presence"})
			return
		}
		h.log.Warn("presence lookup failed, falling back to local registry", zap.Error(err))
	}

	conns := h.registry.ListByRole(models.RoleStaff)
	members := make([]models.OnlineStaff, 0, len(conns))
	for _, conn := range conns {
		members = append(members, models.OnlineStaff{
			ConnID:      conn.ID,
			Identity:    conn.Identity,
			ConnectedAt: conn.ConnectedAt,
		})
	}
	response.Success(c, http.StatusOK, gin.H{"staff": members, "source": "local"})
}
