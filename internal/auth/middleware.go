package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// TokenVerifier is satisfied by *Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (WebhookClaims, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	return tok, tok != ""
}

// RequireBearer rejects webhook deliveries without a valid provider token.
func RequireBearer(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := v.Verify(c.Request.Context(), tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		subject := claims.Subject
		if subject == "" {
			subject = claims.AppID
		}
		c.Set("token_subject", subject)
		c.Next()
	}
}

// RequireAdminToken verifies an admin token and injects identity into request context.
// Role checks belong to internal/rbac.
func RequireAdminToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := m.Verify(tok, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.Subject, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Set("subject", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}
