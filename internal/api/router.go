package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/schoolyard/internal/api/handlers"
	"github.com/hugh/schoolyard/internal/api/middleware"
	"github.com/hugh/schoolyard/internal/auth"
	"github.com/hugh/schoolyard/internal/authz"
	"github.com/hugh/schoolyard/internal/identity"
	"github.com/hugh/schoolyard/internal/tenant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    *auth.Service
	IdentityStore  *identity.Store
	Resolver       *tenant.Resolver
	Evaluator      *authz.Evaluator
	PlatformHost   string
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	meHandler := handlers.NewMeHandler(cfg.IdentityStore)
	schoolHandler := handlers.NewSchoolHandler(cfg.IdentityStore, cfg.Resolver, cfg.Evaluator, cfg.PlatformHost)

	// Health endpoints (no auth, no tenant resolution)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes. Every request under /api/v1 is resolved to a tenant
	// from the Host header before anything else runs.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant(cfg.Resolver))

		// Public auth endpoints
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Post("/auth/switch-school", authHandler.SwitchSchool)
			r.Post("/auth/logout", authHandler.Logout)

			r.Get("/me", meHandler.Me)

			// Tenant administration. School creation, domain and plan
			// changes are platform operations; member management is
			// authorized per-school inside the handler so that school
			// staff with memberships.manage can use it too.
			r.Route("/schools", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePlatformAdmin())
					r.Post("/", schoolHandler.Create)
					r.Put("/{schoolID}/domains", schoolHandler.UpdateDomains)
					r.Put("/{schoolID}/plan", schoolHandler.UpdatePlan)
				})

				r.Route("/{schoolID}/members", func(r chi.Router) {
					r.Post("/", schoolHandler.InviteMember)
					r.Put("/{userID}", schoolHandler.UpdateMember)
					r.Delete("/{userID}", schoolHandler.ArchiveMember)
				})
			})
		})
	})

	return &Router{r}
}

var _ http.Handler = (*Router)(nil)
