package auth

import (
	"errors"
	"fmt"
	"strings"

	"dispatch-server/internal/apierrors"
	"dispatch-server/internal/config"
	"dispatch-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const userIDContextKey = "User-ID"

var (
	ErrExpiredToken    = errors.New("token expired")
	ErrInvalidJWTToken = errors.New("invalid token")
)

// Middleware authenticates requests to the protected API group: a bearer JWT
// identifying the operator, or a static API key for machine clients when one
// is configured.
type Middleware struct {
	config config.AuthConfig
	logger *observability.Logger
}

func NewMiddleware(authConfig config.AuthConfig, logger *observability.Logger) *Middleware {
	return &Middleware{config: authConfig, logger: logger}
}

// Handle validates the request credentials and stores the resolved user id in
// the gin context.
func (m *Middleware) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" && m.config.APIKeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(m.config.APIKeyHash), []byte(apiKey)); err != nil {
			apierrors.Unauthorized(c, "invalid API key")
			c.Abort()
			return
		}
		// Machine clients act on behalf of the operator named in a header.
		userID := c.GetHeader("X-User-ID")
		if _, err := uuid.Parse(userID); err != nil {
			apierrors.Unauthorized(c, "X-User-ID header is missing or invalid")
			c.Abort()
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
		return
	}

	tokenHeader := c.GetHeader("Authorization")
	if tokenHeader == "" || !strings.HasPrefix(tokenHeader, "Bearer ") {
		apierrors.Unauthorized(c, "authorization token is missing or invalid")
		c.Abort()
		return
	}
	tokenString := strings.TrimPrefix(tokenHeader, "Bearer ")

	sub, err := m.validateToken(tokenString)
	if err != nil {
		m.logger.InfoWithError(ctx, "rejected token", err)
		apierrors.Unauthorized(c, err.Error())
		c.Abort()
		return
	}

	c.Set(userIDContextKey, sub)
	c.Next()
}

func (m *Middleware) validateToken(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidJWTToken
	}
	if !t.Valid || claims.Subject == "" {
		return "", ErrInvalidJWTToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidJWTToken
	}
	return claims.Subject, nil
}

// GetUserID extracts the authenticated user's id from the gin context. It
// only fails when a handler is reached without the middleware, which is a
// routing bug.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return uuid.Nil, errors.New("user id missing from request context")
	}
	userID, err := uuid.Parse(value.(string))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse user id: %w", err)
	}
	return userID, nil
}
