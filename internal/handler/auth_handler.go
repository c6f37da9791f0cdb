package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"phone-auth-service/internal/service"
	"phone-auth-service/internal/util"
)

// AuthHandler handles HTTP requests for the phone authentication flow
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all auth routes. The OTP-sensitive endpoints each
// sit behind their own rate-limit budget keyed by the operation name; the
// credentials endpoint runs after verification and is not limited.
func (h *AuthHandler) RegisterRoutes(router chi.Router, limiter *RateLimitMiddleware) {
	router.Group(func(r chi.Router) {
		r.Use(limiter.Limit("authenticate_phone"))
		r.Post("/authenticate", h.Authenticate)
	})
	router.Group(func(r chi.Router) {
		r.Use(limiter.Limit("verify_otp"))
		r.Post("/verify_otp", h.VerifyOTP)
	})
	router.Post("/user_credentials", h.UserCredentials)
}

// Authenticate handles the first step of the flow: either the phone already
// belongs to a verified user, or an OTP challenge is issued for it.
// @Summary Start phone authentication
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 429 {object} Response
// @Failure 500 {object} Response
// @Router /authenticate [post]
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.authService.Authenticate(ctx, req.Phone)
	if err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to start authentication")
		return
	}

	data := map[string]interface{}{
		"userExists": result.UserExists,
	}
	message := "User already registered"
	if !result.UserExists {
		data["firstTime"] = result.FirstTime
		message = "OTP sent"
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(data, message))
	h.logger.Info("Authentication started via HTTP",
		util.Bool("user_exists", result.UserExists),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Authenticate"),
	)
}

// VerifyOTP handles code submission and, on success, returns the credential
// token.
// @Summary Verify OTP code
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 410 {object} Response
// @Failure 429 {object} Response
// @Failure 500 {object} Response
// @Router /verify_otp [post]
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Phone string `json:"phone"`
		OTP   string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	tokenStr, err := h.authService.VerifyOTP(ctx, req.Phone, req.OTP)
	if err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "OTP verification failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{
		"token": tokenStr,
	}, "Phone verified successfully"))
	h.logger.Info("OTP verified via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "VerifyOTP"),
	)
}

// UserCredentials fills in the user's profile after verification.
// @Summary Submit user credentials
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 429 {object} Response
// @Failure 500 {object} Response
// @Router /user_credentials [post]
func (h *AuthHandler) UserCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Phone     string `json:"phone"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if req.FirstName == "" || req.LastName == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("first and last name are required"), "Missing required fields")
		return
	}

	user, err := h.authService.UpdateProfile(ctx, req.Phone, req.FirstName, req.LastName, req.Email)
	if err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to update credentials")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(user, "Credentials updated successfully"))
	h.logger.Info("User credentials updated via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "UserCredentials"),
	)
}

// Helper Methods

// respondWithJSON sends a JSON response
func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *AuthHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrMalformedCode),
		errors.Is(err, service.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrChallengeNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrCodeAlreadyUsed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
