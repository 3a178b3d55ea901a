package handlers

import (
	"net/http"

	"github.com/durantgrace/phoneotp/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// NewRouter mounts the OTP routes. verification may be nil when verification
// tokens are disabled, in which case /api/v1/otp/me is not served.
func NewRouter(
	otpHandlers *OTPHandlers,
	verification *middleware.VerificationMiddleware,
	allowedOrigins []string,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.CORSMiddleware(allowedOrigins))
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", otpHandlers.Health).Methods("GET", "OPTIONS")

	// routes kept for existing storefront clients
	router.HandleFunc("/send-otp", otpHandlers.SendOTP).Methods("POST", "OPTIONS")
	router.HandleFunc("/verify-otp", otpHandlers.VerifyOTP).Methods("POST", "OPTIONS")

	api := router.PathPrefix("/api/v1").Subrouter()

	otp := api.PathPrefix("/otp").Subrouter()
	otp.HandleFunc("/send", otpHandlers.SendOTP).Methods("POST", "OPTIONS")
	otp.HandleFunc("/verify", otpHandlers.VerifyOTP).Methods("POST", "OPTIONS")
	otp.HandleFunc("/status", otpHandlers.Status).Methods("GET", "OPTIONS")

	if verification != nil {
		otp.Handle("/me", verification.RequireVerification(http.HandlerFunc(otpHandlers.Me))).Methods("GET", "OPTIONS")
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otpHandlers.respondWithError(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otpHandlers.respondWithError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return router
}
