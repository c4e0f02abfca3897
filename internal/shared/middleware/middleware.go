package middleware

import (
	"net/http"
	"strings"

	"ticketon/internal/shared/apperrors"
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Identity is the authenticated caller attached to the request context
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// JWTAuth creates a JWT authentication middleware
func JWTAuth() gin.HandlerFunc {
	return JWTAuthWithConfig(config.Load())
}

// JWTAuthWithConfig creates a JWT authentication middleware with config
func JWTAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondError(c, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authorization header is required", nil)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.RespondError(c, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authorization header format must be Bearer {token}", nil)
			c.Abort()
			return
		}

		identity, err := ParseToken(parts[1], cfg.JWT.Secret)
		if err != nil {
			response.RespondError(c, http.StatusUnauthorized, apperrors.CodeUnauthorized, "invalid or expired token", nil)
			c.Abort()
			return
		}

		c.Set("user_id", identity.UserID)
		c.Set("user_email", identity.Email)
		c.Set("user_role", identity.Role)

		c.Next()
	}
}

// ParseToken validates a bearer token and extracts the caller identity.
// Shared with the WebSocket handshake, which reads the token from the auth
// payload or query string instead of a header.
func ParseToken(tokenString, secret string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.Unauthorized("invalid token claims")
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, apperrors.Unauthorized("invalid token type")
	}

	identity := &Identity{}
	if v, ok := claims["user_id"].(string); ok {
		identity.UserID = v
	}
	if v, ok := claims["email"].(string); ok {
		identity.Email = v
	}
	if v, ok := claims["role"].(string); ok {
		identity.Role = v
	}
	if identity.UserID == "" {
		return nil, apperrors.Unauthorized("token missing user id")
	}

	return identity, nil
}

// RequireRole middleware checks if user has required role
func RequireRole(requiredRole string) gin.HandlerFunc {
	return RequireRoles(requiredRole)
}

// RequireAdmin middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole("admin")
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			response.RespondError(c, http.StatusUnauthorized, apperrors.CodeUnauthorized, "user role not found in context", nil)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range requiredRoles {
			if userRole.(string) == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			response.RespondError(c, http.StatusForbidden, apperrors.CodeForbidden, "insufficient permissions", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetIdentity reads the authenticated caller off the gin context
func GetIdentity(c *gin.Context) (*Identity, bool) {
	userID, ok := c.Get("user_id")
	if !ok {
		return nil, false
	}
	identity := &Identity{UserID: userID.(string)}
	if v, ok := c.Get("user_email"); ok {
		identity.Email, _ = v.(string)
	}
	if v, ok := c.Get("user_role"); ok {
		identity.Role, _ = v.(string)
	}
	return identity, true
}
