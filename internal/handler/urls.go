package handlers

import (
	"ResQMob/pkg/config"
	"ResQMob/pkg/metrics"
	"ResQMob/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/health", h.HealthCheck)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", h.Connect)

	r := engine.Group(config.GlobalConfig.APIPrefix)
	r.Use(middleware.RateLimiter())
	r.Use(middleware.MetricsMiddleware(metrics.Global()))

	h.registerAlertRoutes(r)
	h.registerLocationRoutes(r)
}

// Alert Module
func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	alerts := r.Group("/alerts")
	{
		alerts.POST("", h.CreateAlert)
		alerts.GET("/nearby", h.Nearby)
		alerts.GET("/stream", h.Stream)
		alerts.GET("/user/:id", h.UserAlerts)
		alerts.GET("/:id", h.GetAlert)
		alerts.POST("/:id/respond", h.Respond)
		alerts.POST("/:id/resolve", h.Resolve)
		alerts.POST("/:id/escalate", h.Escalate)
		alerts.POST("/:id/confirm", h.Confirm)
	}
}

// Location Module
func (h *Handlers) registerLocationRoutes(r *gin.RouterGroup) {
	r.POST("/locations", h.ReportLocation)
}
