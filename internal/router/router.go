package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/cds-engine/internal/bootstrap"
	"github.com/jwalitptl/cds-engine/internal/handler/alert"
	"github.com/jwalitptl/cds-engine/internal/handler/audit"
	"github.com/jwalitptl/cds-engine/internal/handler/cds"
	"github.com/jwalitptl/cds-engine/internal/handler/health"
	promhandler "github.com/jwalitptl/cds-engine/internal/handler/prometheus"
	"github.com/jwalitptl/cds-engine/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	config  RouterConfig
	metrics *promhandler.Handler

	healthH Handler
	cdsH    Handler
	alertH  Handler
	auditH  Handler
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	MaxBodySize      int64
	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string
	// JWTSecret enables bearer authentication on /api/v1 when set.
	JWTSecret      string
	MetricsEnabled bool
	MetricsPath    string
	MetricsPrefix  string
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
}

// ConfigFrom derives router settings from the application configuration.
func ConfigFrom(app *bootstrap.App) RouterConfig {
	cfg := app.Config
	return RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSOrigins:      cfg.CORS.AllowedOrigins,
		JWTSecret:        cfg.JWT.Secret,
		MetricsEnabled:   cfg.Monitoring.PrometheusEnabled,
		MetricsPath:      cfg.Monitoring.MetricsPath,
	}
}

func NewRouter(app *bootstrap.App, config RouterConfig) *Router {
	if config.MetricsPrefix == "" {
		config.MetricsPrefix = "cds"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultSizeLimitConfig().MaxBodySize
	}

	engine := gin.New()

	r := &Router{
		engine:  engine,
		config:  config,
		metrics: promhandler.New(config.MetricsPrefix, config.Registerer, config.Gatherer),
		healthH: health.NewHandler(app.Store),
		cdsH:    cds.NewHandler(app.Engine, app.History),
		alertH:  alert.NewHandler(app.History),
		auditH:  audit.NewHandler(app.Audit, app.Report),
	}
	if config.JWTSecret != "" {
		r.auth = middleware.NewAuthMiddleware(config.JWTSecret)
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		r.metrics.Middleware(),
		middleware.ErrorHandler(),
		middleware.Validation(middleware.DefaultValidationConfig()),
	)

	if len(config.CORSOrigins) > 0 {
		engine.Use(middleware.CORS(config.CORSOrigins))
	}

	if config.RateLimitEnabled && config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	r.setup()
	return r
}

func (r *Router) setup() {
	r.healthH.RegisterRoutes(&r.engine.RouterGroup)
	if r.config.MetricsEnabled {
		r.engine.GET(r.config.MetricsPath, r.metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: r.config.MaxBodySize}))
	if r.auth != nil {
		api.Use(r.auth.Authenticate())
	}

	r.cdsH.RegisterRoutes(api)
	r.alertH.RegisterRoutes(api)
	r.auditH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Auth is nil when authentication is disabled.
func (r *Router) Auth() *middleware.AuthMiddleware {
	return r.auth
}
