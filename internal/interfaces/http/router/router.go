// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llm-sentinel-api/internal/application/constraint"
	"llm-sentinel-api/internal/config"
	"llm-sentinel-api/internal/interfaces/http/handler"
	"llm-sentinel-api/internal/interfaces/http/middleware"
)

// Deps 路由依赖
type Deps struct {
	Health      *handler.HealthHandler
	Telemetry   *handler.TelemetryHandler
	Incident    *handler.IncidentHandler
	Remediation *handler.RemediationHandler
	Constraint  *handler.ConstraintHandler
	Admin       *handler.AdminHandler

	Constraints *constraint.Service
	RateLimiter middleware.RateLimiter
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	deps   Deps
}

// New 创建新的路由器
func New(cfg *config.Config, deps Deps) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine: engine,
		cfg:    cfg,
		deps:   deps,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.Auth(middleware.AuthConfig{
		Secret:    r.cfg.Security.JWT.Secret,
		Issuer:    r.cfg.Security.JWT.Issuer,
		SkipPaths: middleware.DefaultSkipPaths,
		Enabled:   r.cfg.Security.JWT.Secret != "",
	}))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.deps.Health.Health)
	r.engine.GET("/ready", r.deps.Health.Ready)
	r.engine.GET("/live", r.deps.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")

	// 项目作用域路由：归属校验 -> 约束执行 -> 限流
	projects := v1.Group("/projects/:project_id")
	projects.Use(middleware.ProjectScope())
	projects.Use(middleware.Constraints(r.deps.Constraints))
	projects.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerMinute: r.cfg.Security.RateLimit.RequestsPerMinute,
		KeyPrefix:         r.cfg.Security.RateLimit.KeyPrefix,
	}, r.deps.RateLimiter))
	{
		projects.POST("/requests", r.deps.Telemetry.LogRequest)
		projects.GET("/requests", r.deps.Telemetry.ListRequests)

		incidents := projects.Group("/incidents")
		{
			incidents.GET("", r.deps.Incident.List)
			incidents.GET("/:incident_id", r.deps.Incident.Get)
			incidents.POST("/:incident_id/resolve", r.deps.Incident.Resolve)

			actions := incidents.Group("/:incident_id/actions")
			{
				actions.POST("", r.deps.Remediation.Create)
				actions.GET("", r.deps.Remediation.List)
				actions.GET("/:action_id", r.deps.Remediation.Get)
				actions.POST("/:action_id/apply", r.deps.Remediation.Apply)
				actions.DELETE("/:action_id", r.deps.Remediation.Delete)
			}
		}

		projects.GET("/constraints", r.deps.Constraint.Get)
	}

	// 管理端路由
	admin := v1.Group("/admin")
	if r.cfg.Security.JWT.Secret != "" {
		admin.Use(middleware.RequireRole(middleware.RoleAdmin))
	}
	{
		admin.POST("/detection/run", r.deps.Admin.TriggerDetection)
	}
}
