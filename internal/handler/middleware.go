package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cashback-service/internal/models"
	"cashback-service/internal/service"
	"cashback-service/internal/token"
	"cashback-service/internal/util"
)

type ctxKey int

const claimsKey ctxKey = iota

// AccessValidator checks bearer access tokens.
type AccessValidator interface {
	ValidateAccess(tokenString string) (*token.Claims, error)
}

// requireHTTPS rejects any request that wasn't made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired)
			w.Write([]byte(`{"success":false,"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticate accepts "Authorization: Bearer <access token>" and stores
// the claims on the request context.
func Authenticate(tokens AccessValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	h := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				h.respondWithError(w, http.StatusUnauthorized, service.ErrUnauthorized, "Missing bearer token")
				return
			}
			claims, err := tokens.ValidateAccess(raw)
			if err != nil {
				h.respondWithError(w, http.StatusUnauthorized, service.ErrUnauthorized, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	h := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFrom(r.Context())
			if claims == nil || claims.Role != models.RoleAdmin {
				h.respondWithError(w, http.StatusForbidden, service.ErrForbidden, "Admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func claimsFrom(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsKey).(*token.Claims)
	return claims
}

// userID returns the authenticated subject; routes that call it sit
// behind Authenticate.
func userID(r *http.Request) string {
	if c := claimsFrom(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
