package httpapi

import (
	"ticketing-commerce/pkg/config"
	"ticketing-commerce/pkg/health"
	"ticketing-commerce/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		NewV1,
	),
	fx.Invoke(registerHealthEndpoint),
)

// V1 is the authenticated /v1 route group every service registers on.
type V1 struct {
	*gin.RouterGroup
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.Error(),
	)
	return r
}

func NewV1(r *gin.Engine) V1 {
	return V1{RouterGroup: r.Group("/v1", middleware.Authenticate())}
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/livez", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
