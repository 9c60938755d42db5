package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"conference-orchestrator/internal/auth"

	"github.com/gin-gonic/gin"
)

func withRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func run(t *testing.T, role string, allowed ...string) int {
	t.Helper()
	r := gin.New()
	r.GET("/x", withRole(role), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if got := run(t, RoleAdmin, RoleViewer); got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
}

func TestRequireAnyRole_DeniesRoleNotAllowed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if got := run(t, RoleViewer, RoleOperator); got != 403 {
		t.Fatalf("expected 403, got %d", got)
	}
}

func TestRequireAnyRole_UnknownRoleDenied(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if got := run(t, "super_admin", "super_admin"); got != 403 {
		t.Fatalf("expected 403, got %d", got)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if got := run(t, "", RoleViewer); got != 401 {
		t.Fatalf("expected 401, got %d", got)
	}
}
