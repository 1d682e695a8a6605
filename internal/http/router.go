package http

import (
	"log/slog"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/geocoder89/civichub/internal/config"
	"github.com/geocoder89/civichub/internal/domain/user"
	"github.com/geocoder89/civichub/internal/http/handlers"
	"github.com/geocoder89/civichub/internal/http/middlewares"
	"github.com/geocoder89/civichub/internal/observability"
	"github.com/geocoder89/civichub/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const jsonBodyLimit = 1 << 20

type Deps struct {
	Config      config.Config
	Log         *slog.Logger
	Prom        *observability.Prom
	Gatherer    prometheus.Gatherer
	Tokens      middlewares.TokenVerifier
	Auth        handlers.AuthAPI
	Issues      handlers.IssuesAPI
	Hub         *realtime.Hub
	AdminJobs   handlers.AdminJobsRepo // nil with the memory store
	Checks      map[string]handlers.Check
	RateLimiter *middlewares.RateLimiter
	// StreamHeartbeat defaults to 25s.
	StreamHeartbeat time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("civichub-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	uploadsPrefix := ""
	if d.Config.S3Endpoint == "" && strings.HasPrefix(d.Config.UploadURL, "/") {
		uploadsPrefix = d.Config.UploadURL
	}
	r.Use(middlewares.SecurityHeaders(uploadsPrefix, d.Config.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(d.Config.CORSOrigins))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	// ops
	h := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	// locally stored photos
	if uploadsPrefix != "" {
		r.Static(uploadsPrefix, d.Config.UploadDir)
	}

	authMW := middlewares.NewAuthMiddleware(d.Tokens)

	limit := func(c *gin.Context) { c.Next() }
	if d.RateLimiter != nil {
		limit = d.RateLimiter.RateLimiterMiddleware(middlewares.PerRoute(middlewares.KeyByUserOrIP))
	}
	jsonLimit := middlewares.MaxBodyBytes(jsonBodyLimit)

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(d.Auth)
	api.POST("/register", limit, jsonLimit, authHandler.Register)
	api.POST("/login", limit, jsonLimit, authHandler.Login)
	api.GET("/me", authMW.RequireAuth(), authHandler.Me)

	issuesHandler := handlers.NewIssuesHandler(d.Issues, d.Config.MaxUploadBytes())
	api.GET("/issues", issuesHandler.ListIssues)
	// auth runs first so the limiter can key on the user
	api.POST("/issues", authMW.OptionalAuth(), limit, issuesHandler.CreateIssue)
	api.PUT("/issues/:id/status",
		authMW.RequireAuth(),
		authMW.RequireRole(user.RoleAdmin),
		jsonLimit,
		issuesHandler.UpdateStatus,
	)

	if d.Hub != nil {
		stream := handlers.NewStreamHandler(d.Hub, d.StreamHeartbeat)
		api.GET("/issues/stream", stream.Stream)
	}

	if d.AdminJobs != nil {
		admin := api.Group("/admin", authMW.RequireAuth(), authMW.RequireRole(user.RoleAdmin))
		jobsHandler := handlers.NewAdminJobsHandler(d.AdminJobs)
		admin.GET("/jobs", jobsHandler.List)
		admin.GET("/jobs/:id", jobsHandler.GetByID)
		admin.POST("/jobs/:id/retry", jobsHandler.Retry)
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.RespondError(c, nethttp.StatusNotFound, "not_found", "Route not found", nil)
	})

	return r
}
