package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/durantgrace/phoneotp/internal/apperror"
	"github.com/durantgrace/phoneotp/internal/middleware"
	"github.com/durantgrace/phoneotp/internal/repository"
	"github.com/durantgrace/phoneotp/internal/service"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 4 << 10

type OTPHandlers struct {
	otpService *service.OTPService
	store      repository.Store
	logger     *logrus.Logger
}

func NewOTPHandlers(otpService *service.OTPService, store repository.Store, logger *logrus.Logger) *OTPHandlers {
	return &OTPHandlers{
		otpService: otpService,
		store:      store,
		logger:     logger,
	}
}

type SendOTPRequest struct {
	Phone string `json:"phone"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
	Code  string `json:"code"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (h *OTPHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Phone) == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Phone is required")
		return
	}

	result, err := h.otpService.RequestCode(r.Context(), req.Phone)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, result)
}

func (h *OTPHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	code := req.OTP
	if strings.TrimSpace(code) == "" {
		code = req.Code
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(code) == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Phone and OTP are required")
		return
	}

	result, err := h.otpService.VerifyCode(r.Context(), req.Phone, code)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, result)
}

func (h *OTPHandlers) Status(w http.ResponseWriter, r *http.Request) {
	phoneNumber := r.URL.Query().Get("phone")
	if strings.TrimSpace(phoneNumber) == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Phone is required")
		return
	}

	status, err := h.otpService.CheckVerified(r.Context(), phoneNumber)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, status)
}

// Me echoes the phone proven by the verification token.
func (h *OTPHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"phone":      claims.Phone,
		"verified":   true,
		"expires_at": claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}

func (h *OTPHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"store":  "unreachable",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  "ok",
	})
}

func (h *OTPHandlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (h *OTPHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *OTPHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// respondWithAppError maps a service rejection to its HTTP status and body.
func (h *OTPHandlers) respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.KindOf(err)
	detail := ErrorDetail{
		Code:      kind.String(),
		Message:   "Internal server error",
		Retryable: kind.Retryable(),
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		detail.Message = appErr.Message
		detail.Details = appErr.Details
	}

	if kind == apperror.KindInternal {
		h.logger.WithError(err).
			WithField("request_id", middleware.RequestIDFromContext(r.Context())).
			Error("Unhandled error")
	}

	if retryAfter, ok := detail.Details["retry_after_seconds"]; ok {
		w.Header().Set("Retry-After", fmt.Sprint(retryAfter))
	}

	h.respondWithJSON(w, kind.HTTPStatus(), ErrorResponse{Error: detail})
}
