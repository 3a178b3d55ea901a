package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/durantgrace/phoneotp/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	claimsKey    contextKey = "claims"
	requestIDKey contextKey = "request_id"
)

type VerificationMiddleware struct {
	jwtService *service.JWTService
	logger     *logrus.Logger
}

func NewVerificationMiddleware(jwtService *service.JWTService, logger *logrus.Logger) *VerificationMiddleware {
	return &VerificationMiddleware{
		jwtService: jwtService,
		logger:     logger,
	}
}

// RequireVerification admits requests carrying a valid phone verification
// token and stores its claims in the request context.
func (m *VerificationMiddleware) RequireVerification(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondUnauthorized(w, "Missing authorization header")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondUnauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.jwtService.VerifyToken(parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("Token verification failed")
			m.respondUnauthorized(w, "Invalid or expired verification token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims set by RequireVerification.
func ClaimsFromContext(ctx context.Context) (*service.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*service.Claims)
	return claims, ok
}

func (m *VerificationMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":      "UNAUTHORIZED",
			"message":   message,
			"retryable": false,
		},
	})
}
