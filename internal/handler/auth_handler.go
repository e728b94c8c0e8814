package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cashback-service/internal/models"
	"cashback-service/internal/service"
	"cashback-service/internal/util"
)

// AuthAPI is the slice of service.AuthService the handler calls.
type AuthAPI interface {
	SendOTP(ctx context.Context, req service.SendOTPRequest) (*service.SendOTPResult, error)
	VerifyOTP(ctx context.Context, email, code string) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	Me(ctx context.Context, userID string) (*models.User, error)
}

// AuthHandler serves signup, login and token endpoints.
type AuthHandler struct {
	responder
	auth AuthAPI
}

func NewAuthHandler(auth AuthAPI, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{responder: responder{logger: logger}, auth: auth}
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// RegisterRoutes mounts /auth. authn guards the routes that need a caller.
func (h *AuthHandler) RegisterRoutes(router chi.Router, authn func(http.Handler) http.Handler) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/send-otp", h.SendOTP)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)

		r.With(authn).Get("/me", h.Me)
	})
}

func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req service.SendOTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.auth.SendOTP(r.Context(), req)
	if err != nil {
		h.fail(w, err, "Failed to send OTP")
		return
	}

	h.logger.Info("OTP sent via API", util.Duration("duration", time.Since(start)))
	h.respondWithJSON(w, http.StatusOK, successResponse(result, result.Message))
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req verifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.fail(w, err, "Failed to verify OTP")
		return
	}

	h.logger.Info("Account created via API",
		util.String("user_id", result.User.ID),
		util.Duration("duration", time.Since(start)),
	)
	h.respondWithJSON(w, http.StatusCreated, successResponse(result, "Account created"))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err, "Login failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Logged in"))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, err, "Failed to refresh token")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, ""))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, err, "Failed to log out")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, err, "Failed to start password reset")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "If the account exists, a reset code has been sent"))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		h.fail(w, err, "Failed to reset password")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Password updated"))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), userID(r))
	if err != nil {
		h.fail(w, err, "Failed to load profile")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(user, ""))
}
