package httpapi

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"inkwell.org/internal/audit"
	"inkwell.org/internal/auth"
	"inkwell.org/internal/obs"
)

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	AcceptTerms     bool   `json:"acceptTerms"`
}

func (req registerRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&req.ConfirmPassword, validation.Required, validation.In(req.Password).Error("must match password")),
		validation.Field(&req.AcceptTerms, validation.In(true).Error("terms must be accepted")),
	)
}

func registerInput(req registerRequest) auth.RegisterInput {
	return auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	account, err := a.opts.Auth.Register(r.Context(), registerInput(req), clientIP(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.Event(r.Context(), "account.registered", map[string]any{
		"account_id": account.ID,
		"email":      account.Email,
	})
	writeJSON(w, http.StatusCreated, account)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req loginRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Password, validation.Required),
	)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := a.opts.Auth.Attempt(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			obs.ObserveLogin("forbidden")
		} else {
			obs.ObserveLogin("unauthorized")
		}
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("success")
	obs.ObserveTokenIssued("access")
	obs.ObserveTokenIssued("refresh")
	_ = audit.Event(r.Context(), "account.login", map[string]any{"email": strings.ToLower(req.Email)})
	writeJSON(w, http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	resp, err := a.opts.Auth.Refresh(r.Context(), req.RefreshToken, clientIP(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveTokenIssued("access")
	obs.ObserveTokenIssued("refresh")
	writeJSON(w, http.StatusOK, resp)
}

type resendRequest struct {
	Email string `json:"email"`
}

func (req resendRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Email, validation.Required, is.Email),
	)
}

// handleActivate serves GET /auth/activate/{token} and
// POST /auth/activate/resend.
func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/auth/activate/")
	if rest == "resend" {
		a.handleActivateResend(w, r)
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	account, err := a.opts.Auth.Activate(r.Context(), rest)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.Event(r.Context(), "account.activated", map[string]any{"account_id": account.ID})
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleActivateResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.opts.Auth.ResendActivation(r.Context(), req.Email, clientIP(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkTokenRequest struct {
	Token string `json:"token"`
}

// handleCheckToken decodes a token without verifying it. Debugging aid; the
// response is untrusted claim content.
func (a *API) handleCheckToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := a.opts.Auth.CheckToken(req.Token)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}
