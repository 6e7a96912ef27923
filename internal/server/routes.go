// ABOUTME: Route table for the bankd HTTP API
// ABOUTME: Bank routes require a bearer token; admin routes additionally require the admin role

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/northbridge/bankd/internal/audit"
	"github.com/northbridge/bankd/internal/auth"
	"github.com/northbridge/bankd/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodyBytes))
	if origins := s.config.Server.CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(auditSource)

	r.Get("/health", s.handleHealth)

	var limiter *ipLimiter
	if perMinute := s.config.Server.AuthRateLimit; perMinute > 0 {
		limiter = newIPLimiter(perMinute)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(s.throttle(limiter, audit.OpRegister)).Post("/register", s.handleRegister)
		r.With(s.throttle(limiter, audit.OpLogin)).Post("/login", s.handleLogin)
	})

	r.Route("/bank", func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(s.auth, s.recorder))

		r.Get("/me", s.handleMe)
		r.Post("/deposit", s.handleDeposit)
		r.Post("/transfer", s.handleTransfer)
		r.Get("/transactions", s.handleTransactions)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRoleHTTP(store.RoleAdmin, s.recorder))

			r.Get("/overview", s.handleAdminOverview)
			r.Get("/audit", s.handleAdminAudit)
		})
	})

	return r
}
