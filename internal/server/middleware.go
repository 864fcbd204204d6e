package server

import (
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/auth"
)

// authenticate attaches the claims of a valid bearer token to the request
// context. Requests without a token pass through anonymously; a malformed or
// invalid token is rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Auth == nil {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			renderError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := s.deps.Auth.ValidateToken(parts[1])
		if err != nil {
			renderError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// requireEditor rejects callers without the editor role
func (s *Server) requireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Auth == nil {
			next.ServeHTTP(w, r)
			return
		}

		claims := auth.ClaimsFrom(r.Context())
		if claims == nil {
			renderError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !claims.HasRole(auth.RoleEditor) {
			renderError(w, http.StatusForbidden, "Editor role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// policy returns the edit policy for the caller of r
func (s *Server) policy(r *http.Request) auth.Policy {
	if s.deps.Auth == nil {
		return auth.ReadOnlyPolicy
	}
	return auth.ForClaims(auth.ClaimsFrom(r.Context()))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())))
	})
}
