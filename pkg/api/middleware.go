package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/contextkeys"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/httputil"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/tokens"
)

// BearerAuthMiddleware verifies the Authorization bearer token and stores the
// verified claims in the request context.
type BearerAuthMiddleware struct {
	verifier *tokens.Verifier
}

// NewBearerAuthMiddleware creates an auth middleware around a token verifier
func NewBearerAuthMiddleware(verifier *tokens.Verifier) *BearerAuthMiddleware {
	return &BearerAuthMiddleware{verifier: verifier}
}

// Handler wraps an HTTP handler with bearer authentication
func (m *BearerAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		token, err := m.verifier.VerifyAccessToken(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), token)
		ctx = contextkeys.WithUserID(ctx, token.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerToken extracts the verified access token from the request context.
// Returns nil when the request did not pass through the auth middleware.
func CallerToken(r *http.Request) *tokens.VerifiedAccessToken {
	token, _ := r.Context().Value(contextkeys.AuthKey).(*tokens.VerifiedAccessToken)
	return token
}

// RequestLoggingMiddleware assigns a request ID and logs each request
func RequestLoggingMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()

			ctx := contextkeys.WithRequestID(r.Context(), requestID)
			w.Header().Set("X-Request-ID", requestID)

			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			logger.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rw.status,
				"duration":   time.Since(start).String(),
			}).Info("request handled")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
