package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/durantgrace/phoneotp/internal/config"
	"github.com/durantgrace/phoneotp/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()

	handler := RequestID(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/send-otp", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, http.StatusTooManyRequests, entry.Data["status"])
	assert.Equal(t, 9, entry.Data["bytes"])
	assert.Equal(t, "/send-otp", entry.Data["path"])
	assert.Equal(t, "abc-123", entry.Data["request_id"])
}

func TestCORSWildcard(t *testing.T) {
	called := false
	handler := CORSMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}

func TestRequireVerification(t *testing.T) {
	logger, _ := test.NewNullLogger()
	jwtService, err := service.NewJWTService(&config.JWTConfig{
		SecretKey:          "0123456789abcdef0123456789abcdef",
		VerificationExpiry: time.Minute,
	}, logger)
	require.NoError(t, err)

	var gotPhone string
	handler := NewVerificationMiddleware(jwtService, logger).RequireVerification(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		gotPhone = claims.Phone
	}))

	token, err := jwtService.IssueVerificationToken("639171234567")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token.Token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token.Token, http.StatusUnauthorized},
		{"tampered", "Bearer " + token.Token + "x", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/otp/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	assert.Equal(t, "639171234567", gotPhone)
}
