// ABOUTME: HTTP middleware attaching the request actor from a bearer token
// ABOUTME: Anonymous requests pass through; RequireActor gates endpoints that need one

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// ActorHeader carries the actor ID when the server runs without a JWT secret.
const ActorHeader = "X-Actor-ID"

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// OptionalAuthMiddleware attaches the actor of a valid bearer token and lets
// every other request through as anonymous. With a nil verifier the actor is
// taken from the X-Actor-ID header instead, which is only safe in development.
func OptionalAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if verifier == nil {
		logger.Warn("no jwt secret configured; trusting " + ActorHeader + " header")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				if id := strings.TrimSpace(r.Header.Get(ActorHeader)); id != "" {
					r = r.WithContext(WithActor(r.Context(), &Actor{ID: id}))
				}
				next.ServeHTTP(w, r)
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("ignoring invalid bearer token", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireActor rejects anonymous requests with 401. Must run after
// OptionalAuthMiddleware.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
