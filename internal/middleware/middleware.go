package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/saq-app/backend/internal/auth"
	"github.com/saq-app/backend/internal/models"
)

// LazyTokenHeader carries the token minted for a freshly created lazy user.
const LazyTokenHeader = "X-Auth-Token"

// TokenParser validates a bearer token and returns its user id.
type TokenParser interface {
	Parse(raw string) (int64, error)
}

type TokenIssuer interface {
	TokenParser
	Issue(userID int64) (string, error)
}

// LazyUserCreator creates an anonymous account and returns its id.
type LazyUserCreator interface {
	Create(ctx context.Context) (int64, error)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(tokens TokenParser) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := auth.BearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
				return
			}
			uid, err := tokens.Parse(raw)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), uid)))
		})
	}
}

// AllowLazyUser authenticates like RequireAuth when a token is present.
// Without one, it creates a lazy user for the request and returns the
// new token in the X-Auth-Token response header.
func AllowLazyUser(tokens TokenIssuer, users LazyUserCreator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, ok := auth.BearerToken(r); ok {
				uid, err := tokens.Parse(raw)
				if err != nil {
					writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token"})
					return
				}
				next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), uid)))
				return
			}

			uid, err := users.Create(r.Context())
			if err != nil {
				log.Printf("[middleware] lazy user error: %v", err)
				writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
				return
			}
			token, err := tokens.Issue(uid)
			if err != nil {
				log.Printf("[middleware] lazy token error: %v", err)
				writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
				return
			}
			w.Header().Set(LazyTokenHeader, token)
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), uid)))
		})
	}
}

// RequireAdminKey compares the X-Admin-Key header against key.
func RequireAdminKey(key string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Key")
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NeverCache marks the response as uncacheable.
func NeverCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "max-age=0, no-cache, no-store, must-revalidate, private")
		h.Set("Expires", "Thu, 01 Jan 1970 00:00:00 GMT")
		h.Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// Logging writes one line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[http] %s %s %d", r.Method, r.URL.Path, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
