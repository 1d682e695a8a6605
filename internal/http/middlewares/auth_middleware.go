package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/civichub/internal/actorctx"
	"github.com/geocoder89/civichub/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

const (
	ctxUserIDKey = "auth.userID"
	ctxEmailKey  = "auth.email"
	ctxRoleKey   = "auth.role"
)

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":      "unauthorized",
			"message":   message,
			"requestId": c.GetString(CtxRequestID),
		},
	})
}

// bearerToken returns the raw token and whether an Authorization header was
// sent at all.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", true
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer")), true
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, sent := bearerToken(c)
		if !sent {
			abortUnauthorized(c, "Missing or invalid Authorization header")
			return
		}
		if raw == "" {
			abortUnauthorized(c, "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired access token")
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth lets anonymous requests through but still rejects a token
// that is present and invalid.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, sent := bearerToken(c)
		if !sent {
			c.Next()
			return
		}

		if raw == "" {
			abortUnauthorized(c, "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired access token")
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// Stash useful bits of identity on the gin context and the request context.
func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(ctxUserIDKey, claims.UserID)
	c.Set(ctxEmailKey, claims.Email)
	c.Set(ctxRoleKey, claims.Role)

	ctx := actorctx.WithUserID(c.Request.Context(), claims.UserID)
	ctx = actorctx.WithRole(ctx, claims.Role)
	c.Request = c.Request.WithContext(ctx)
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func RoleFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
