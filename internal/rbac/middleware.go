package rbac

import (
	"net/http"

	"conference-orchestrator/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole admits callers holding one of allowed. Admin is always
// admitted; a role outside the known set never is.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	permitted := map[string]bool{RoleAdmin: true}
	for _, r := range allowed {
		permitted[r] = true
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		switch {
		case err != nil || role == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
		case !IsKnownRole(role) || !permitted[role]:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.Next()
		}
	}
}
