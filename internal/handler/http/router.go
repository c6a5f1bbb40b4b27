package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medusa2112/HealiosHealth-sub005/internal/ratelimit"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/health"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/middleware"
)

// RouterDeps carries everything the router needs, already constructed and
// wired by the app layer.
type RouterDeps struct {
	Customer *CustomerHandler
	Admin    *AdminHandler

	CustomerCSRF *CSRFHandler
	AdminCSRF    *CSRFHandler

	Gate    *Gate
	Limiter *ratelimit.Tracker

	Health *health.Handler
	Logger *slog.Logger

	SecurityHeaders middleware.SecurityHeadersConfig
	CORS            middleware.CORSConfig

	// APIThrottleRPS and APIThrottleBurst bound per-IP request rates across
	// the whole /api surface, independent of the per-class failure tracking.
	APIThrottleRPS   float64
	APIThrottleBurst int
}

// NewRouter creates a chi router with the customer and admin authentication
// surfaces registered on fully separate subtrees. The two realms never share a
// route, a middleware chain, or a cookie.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.SecurityHeaders(deps.SecurityHeaders))
	r.Use(middleware.CORS(deps.CORS))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.Tracing("auth"))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(ratelimit.Throttle(deps.APIThrottleRPS, deps.APIThrottleBurst, deps.Logger))

		// CSRF token issuance, one endpoint per realm. GET so the customer
		// storefront and the admin panel can each bootstrap their token
		// before the first mutating call.
		r.Get("/csrf", deps.CustomerCSRF.Issue)
		r.Get("/admin/csrf", deps.AdminCSRF.Issue)

		// Customer realm
		r.Route("/auth/customer", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(deps.Customer.csrf.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(ratelimit.Limit(deps.Limiter, ratelimit.ClassLogin))

				r.Post("/register", deps.Customer.Register)
				r.Post("/login", deps.Customer.Login)
				r.Post("/login-pin", deps.Customer.LoginWithPin)
			})

			r.Group(func(r chi.Router) {
				r.Use(ratelimit.Limit(deps.Limiter, ratelimit.ClassPasswordReset))

				r.Post("/send-pin", deps.Customer.SendPin)
			})

			// Session introspection never rejects: it reports the current
			// state so the storefront can render either view.
			r.Get("/session", deps.Customer.Session)

			r.Group(func(r chi.Router) {
				r.Use(deps.Gate.RequireCustomer)

				r.Get("/me", deps.Customer.Me)
				r.Post("/logout", deps.Customer.Logout)
			})
		})

		// Admin realm
		r.Route("/auth/admin", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(deps.Admin.csrf.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(ratelimit.Limit(deps.Limiter, ratelimit.ClassAdminLogin))

				r.Post("/login", deps.Admin.Login)
				r.Post("/verify-pin", deps.Admin.VerifyPin)
			})

			r.Group(func(r chi.Router) {
				r.Use(ratelimit.Limit(deps.Limiter, ratelimit.ClassPasswordReset))

				r.Post("/send-pin", deps.Admin.SendPin)
			})

			r.Get("/session", deps.Admin.Session)

			r.Group(func(r chi.Router) {
				r.Use(deps.Gate.RequireAdmin)

				r.Get("/me", deps.Admin.Me)
				r.Post("/change-password", deps.Admin.ChangePassword)
				r.Post("/logout", deps.Admin.Logout)
			})
		})
	})

	return r
}
