package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/rs/zerolog"

	"github.com/learnhub/learnhub-api/internal/model"
	"github.com/learnhub/learnhub-api/internal/usecase"
	"github.com/learnhub/learnhub-api/shared/auth"
)

const refreshCookieName = "refreshToken"

// AuthHandler exposes the credential and session lifecycle over HTTP. The
// refresh token travels exclusively as an HTTP-only cookie; the access token
// is returned in the response body for bearer use.
type AuthHandler struct {
	authUsecase  usecase.AuthUsecase
	resetUsecase usecase.PasswordResetUsecase
	sessions     *usecase.SessionManager
	validate     *validator.Validate
	trans        ut.Translator
	logger       *zerolog.Logger

	production       bool
	refreshExpiresIn time.Duration
}

func NewAuthHandler(
	authUsecase usecase.AuthUsecase,
	resetUsecase usecase.PasswordResetUsecase,
	sessions *usecase.SessionManager,
	logger *zerolog.Logger,
	production bool,
	refreshExpiresIn time.Duration,
) *AuthHandler {
	validate := validator.New()

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		logger.Fatal().Err(err).Msg("failed to register validator translations")
	}

	return &AuthHandler{
		authUsecase:      authUsecase,
		resetUsecase:     resetUsecase,
		sessions:         sessions,
		validate:         validate,
		trans:            trans,
		logger:           logger,
		production:       production,
		refreshExpiresIn: refreshExpiresIn,
	}
}

type registerRequest struct {
	Name     string `json:"name"     validate:"required,min=2,max=100"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role"     validate:"omitempty,oneof=student tutor admin"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type otpRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp"   validate:"required,len=6,numeric"`
}

type loginRequest struct {
	Email      string `json:"email"    validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"       validate:"required,email"`
	OTP         string `json:"otp"         validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

type userPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func newUserPayload(user *model.User) userPayload {
	return userPayload{
		ID:   user.ID.Hex(),
		Name: user.Name,
		Role: user.Role,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	_, err := h.authUsecase.Register(r.Context(), usecase.RegisterParams{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		CallerToken: bearerToken(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrUserAlreadyExists):
			writeMessage(w, http.StatusConflict, "user already exists")
		case errors.Is(err, usecase.ErrRoleNotAllowed):
			writeMessage(w, http.StatusForbidden, "not allowed to assign this role")
		default:
			h.serverError(w, r, err, "registration failed")
		}
		return
	}

	writeMessage(w, http.StatusCreated, "registration successful, check your email for the verification code")
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authUsecase.VerifyOTP(r.Context(), req.Email, req.OTP); err != nil {
		h.writeOTPError(w, r, err, "OTP verification failed")
		return
	}

	writeMessage(w, http.StatusOK, "account verified successfully")
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authUsecase.ResendOTP(r.Context(), req.Email); err != nil {
		h.writeOTPError(w, r, err, "could not resend OTP")
		return
	}

	writeMessage(w, http.StatusOK, "OTP resent successfully")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	pair, user, err := h.authUsecase.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.serverError(w, r, err, "login failed")
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, req.RememberMe)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": pair.AccessToken,
		"user":        newUserPayload(user),
	})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.resetUsecase.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.serverError(w, r, err, "failed to process request")
		return
	}

	// Same answer whether or not the account exists.
	writeMessage(w, http.StatusOK, "if the email exists, an OTP has been sent")
}

func (h *AuthHandler) VerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.resetUsecase.VerifyResetOTP(r.Context(), req.Email, req.OTP); err != nil {
		h.writeOTPError(w, r, err, "OTP verification failed")
		return
	}

	writeMessage(w, http.StatusOK, "OTP verified successfully")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.resetUsecase.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		h.writeOTPError(w, r, err, "password reset failed")
		return
	}

	writeMessage(w, http.StatusOK, "password reset successful, you can now log in")
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeMessage(w, http.StatusForbidden, "no session found")
		return
	}

	pair, _, err := h.sessions.Rotate(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, usecase.ErrSessionInvalid) {
			h.clearRefreshCookie(w)
			writeMessage(w, http.StatusForbidden, "invalid session")
			return
		}
		h.serverError(w, r, err, "refresh failed")
		return
	}

	// The rotated cookie is always persistent; the rememberMe choice made at
	// login is not recoverable from the presented cookie.
	h.setRefreshCookie(w, pair.RefreshToken, true)
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": pair.AccessToken})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if err := h.sessions.End(r.Context(), cookie.Value); err != nil {
			h.logger.Error().Err(err).Msg("failed to clear session on logout")
		}
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeMessage(w, http.StatusUnauthorized, "no session found")
		return
	}

	accessToken, user, err := h.sessions.Identify(r.Context(), cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid):
			writeMessage(w, http.StatusUnauthorized, "session expired")
		case errors.Is(err, usecase.ErrUserNotFound):
			writeMessage(w, http.StatusNotFound, "user not found")
		case errors.Is(err, usecase.ErrSessionInvalid):
			writeMessage(w, http.StatusForbidden, "invalid session")
		default:
			h.serverError(w, r, err, "server error during authentication")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": accessToken,
		"user":        newUserPayload(user),
	})
}

// writeOTPError maps the shared OTP flow errors to their HTTP statuses.
func (h *AuthHandler) writeOTPError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case errors.Is(err, usecase.ErrUserNotFound):
		writeMessage(w, http.StatusNotFound, "user not found")
	case errors.Is(err, usecase.ErrAlreadyVerified):
		writeMessage(w, http.StatusBadRequest, "user already verified")
	case errors.Is(err, usecase.ErrTooManyAttempts):
		writeMessage(w, http.StatusTooManyRequests, "too many failed OTP attempts, try again later")
	case errors.Is(err, usecase.ErrOTPInvalid):
		writeMessage(w, http.StatusBadRequest, "invalid or expired OTP")
	default:
		h.serverError(w, r, err, logMsg)
	}
}

func (h *AuthHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeMessage(w, http.StatusBadRequest, verrs[0].Translate(h.trans))
			return false
		}
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return false
	}

	return true
}

func (h *AuthHandler) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	writeMessage(w, http.StatusInternalServerError, msg)
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string, persistent bool) {
	cookie := &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	}
	if h.production {
		// Cross-site frontend; None requires Secure.
		cookie.SameSite = http.SameSiteNoneMode
	}
	if persistent {
		cookie.MaxAge = int(h.refreshExpiresIn.Seconds())
	}

	http.SetCookie(w, cookie)
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
	if h.production {
		cookie.SameSite = http.SameSiteNoneMode
	}

	http.SetCookie(w, cookie)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
