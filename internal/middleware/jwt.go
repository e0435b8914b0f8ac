package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/response"
)

// ContextKeyClaims is where JWTAuth stores the verified staff claims.
const ContextKeyClaims = "staff_claims"

// StaffClaims represents the claims in a staff session token.
type StaffClaims struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a staff token valid for ttl.
func IssueToken(secret string, userID, name, department string, ttl time.Duration) (string, *StaffClaims, error) {
	if userID == "" {
		userID = uuid.NewString()
	}
	now := time.Now()
	claims := &StaffClaims{
		UserID:     userID,
		Name:       name,
		Department: department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken validates tokenString and returns its claims.
func ParseToken(secret, tokenString string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, apperrors.ErrUnauthorized.WithMessage("Invalid token").WithInternal(err)
	}

	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, apperrors.ErrUnauthorized.WithMessage("Invalid token claims")
	}
	return claims, nil
}

// JWTAuth creates middleware that validates staff tokens. Browsers cannot set
// headers on websocket upgrades, so a ?token= query parameter is accepted too.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractToken(c)
		if err != nil {
			response.Abort(c, err)
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// ClaimsFrom returns the staff claims stored by JWTAuth.
func ClaimsFrom(c *gin.Context) (*StaffClaims, bool) {
	value, ok := c.Get(ContextKeyClaims)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*StaffClaims)
	return claims, ok
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", apperrors.ErrUnauthorized.WithMessage("Authorization header required")
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperrors.ErrUnauthorized.WithMessage("Invalid authorization header format")
	}
	return parts[1], nil
}
