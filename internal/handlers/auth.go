package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/reception-signaling/internal/middleware"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/response"
	"github.com/mossy-p/reception-signaling/pkg/validator"
)

// LoginRequest represents the staff login request body.
type LoginRequest struct {
	Name       string `json:"name" validate:"required,notblank,max=120"`
	Department string `json:"department" validate:"omitempty,max=120"`
	UserID     string `json:"user_id" validate:"omitempty,max=64"`
}

// LoginResponse represents the login response.
type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthHandler issues staff session tokens.
type AuthHandler struct {
	secret string
	ttl    time.Duration
}

// NewAuthHandler builds an AuthHandler signing with secret.
func NewAuthHandler(secret string, ttl time.Duration) *AuthHandler {
	return &AuthHandler{secret: secret, ttl: ttl}
}

// Login handles staff login and JWT generation. Any name is accepted; there
// is no credential store behind it.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrInvalidRequest.WithMessage("Invalid request body"))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.ErrInvalidRequest.WithMessage("%s", err.Error()))
		return
	}

	token, claims, err := middleware.IssueToken(h.secret, req.UserID, req.Name, req.Department, h.ttl)
	if err != nil {
		response.Error(c, apperrors.ErrInternal.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, LoginResponse{
		Token:     token,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}
