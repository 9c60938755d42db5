package main

import (
	"conference-orchestrator/internal/httpapi"
	"conference-orchestrator/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type routeDeps struct {
	handlers httpapi.Handlers
	health   httpapi.Health

	callbackAuth gin.HandlerFunc
	incomingAuth gin.HandlerFunc
	adminAuth    gin.HandlerFunc
	rateLimit    gin.HandlerFunc

	metrics prometheus.Gatherer
}

func rateLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/healthz", d.health.Live)
	r.GET("/readyz", d.health.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.metrics, promhttp.HandlerOpts{})))

	api := r.Group("/api")

	// Provider webhooks.
	api.POST("/calls/:id/events", d.rateLimit, d.callbackAuth, d.handlers.CallEvents)
	api.POST("/incoming-calls", d.rateLimit, d.incomingAuth, d.handlers.IncomingCalls)

	// Admin API.
	admin := api.Group("/calls")
	admin.Use(d.adminAuth)
	{
		read := rbac.RequireAnyRole(rbac.RoleViewer, rbac.RoleOperator)
		admin.GET("/:id", read, d.handlers.GetCall)
		admin.GET("/:id/history", read, d.handlers.History)

		admin.POST("/:id/reconcile", rbac.RequireAnyRole(rbac.RoleOperator), d.handlers.Reconcile)

		// Only admin may create or delete records.
		admin.POST("", rbac.RequireAnyRole(rbac.RoleAdmin), d.handlers.CreateCall)
		admin.DELETE("/:id", rbac.RequireAnyRole(rbac.RoleAdmin), d.handlers.DeleteCall)
	}
}
