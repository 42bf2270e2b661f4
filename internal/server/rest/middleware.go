package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

type contextKey string

const (
	identityKey    contextKey = "identity"
	accessTokenKey contextKey = "accessToken"
)

// requireToken rejects requests without a bearer token. With verify set the
// token must also pass signature, expiry and blacklist checks.
func (s *HTTPServer) requireToken(verify bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respondError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
				return
			}
			ctx := context.WithValue(r.Context(), accessTokenKey, token)

			if verify {
				id, err := s.auth.Verify(ctx, token)
				if err != nil {
					s.respondServiceError(ctx, w, err)
					return
				}
				ctx = context.WithValue(ctx, identityKey, id)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func identityFrom(r *http.Request) *services.Identity {
	id, _ := r.Context().Value(identityKey).(*services.Identity)
	return id
}

func accessTokenFrom(r *http.Request) string {
	v, _ := r.Context().Value(accessTokenKey).(string)
	return v
}
