package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the ops API on e.
func RegisterRoutes(e *echo.Echo, sync *SyncHandler, rules *SLARuleHandler) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	sync.Register(v1.Group("/sync"))
	rules.Register(v1.Group("/sla/rules"))
}
