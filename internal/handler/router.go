package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"cashback-service/internal/util"
)

// RouterOptions carries the HTTP settings the router needs.
type RouterOptions struct {
	AllowedOrigins []string
	RequireTLS     bool
	RequestTimeout time.Duration
}

// Handlers bundles everything mounted under /api/v1.
type Handlers struct {
	Auth      *AuthHandler
	Wallet    *WalletHandler
	Referrals *ReferralHandler
	Admin     *AdminHandler
	Tokens    AccessValidator
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(h Handlers, opts RouterOptions, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if opts.RequireTLS {
		router.Use(requireHTTPS)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"https://*"}
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(opts.RequestTimeout))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		util.Debug("Health check requested")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"cashback-service"}`))
	})

	authn := Authenticate(h.Tokens, logger)

	router.Route("/api/v1", func(r chi.Router) {
		h.Auth.RegisterRoutes(r, authn)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			h.Wallet.RegisterRoutes(r)
			h.Referrals.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin(logger))
				h.Admin.RegisterRoutes(r)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"success":false,"error":"method not allowed"}`))
	})

	return router
}
