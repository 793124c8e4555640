package httpapi

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"inkwell.org/internal/audit"
	"inkwell.org/internal/auth"
)

// accountView shapes an account by the caller's privilege: admins get the
// full record, everyone else a public subset.
func accountView(account *auth.Account, scope string) any {
	if scope == auth.PermAdmin {
		return account
	}
	return map[string]any{
		"id":         account.ID,
		"username":   account.Username,
		"status":     account.Status,
		"created_at": account.CreatedAt,
	}
}

// handleAccounts serves GET (list) and POST (administrative create).
func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleAccountList(w, r)
	case http.MethodPost:
		a.handleAccountCreate(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAccountList(w http.ResponseWriter, r *http.Request) {
	r, ok := a.authorize(w, r, []string{auth.PermAdmin, auth.PermAccountRead}, "", nil)
	if !ok {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit "+err.Error())
		return
	}
	offset, err := parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset "+err.Error())
		return
	}

	accounts, err := a.opts.Auth.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	scope, _ := auth.AuthorizedScopeFromContext(r.Context())
	views := make([]any, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, accountView(account, scope))
	}
	writeJSON(w, http.StatusOK, views)
}

type createAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req createAccountRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Password, validation.Required, validation.Length(8, 128)),
	)
}

func (a *API) handleAccountCreate(w http.ResponseWriter, r *http.Request) {
	r, ok := a.authorize(w, r, []string{auth.PermAdmin}, "", nil)
	if !ok {
		return
	}
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	account, err := a.opts.Auth.CreateAccount(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.Event(r.Context(), "account.created", map[string]any{"account_id": account.ID})
	writeJSON(w, http.StatusCreated, account)
}

// handleAccountSubtree routes /accounts/{id}, /accounts/{id}/password,
// /accounts/{id}/roles and /accounts/{id}/roles/{roleID}.
func (a *API) handleAccountSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/accounts/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleAccountByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "password":
		a.handleAccountPassword(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "roles":
		a.handleAccountRoles(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "roles" && parts[2] != "":
		a.handleAccountRoleToggle(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) handleAccountByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		r, ok := a.authorize(w, r, []string{auth.PermAdmin, auth.PermAccountRead}, "", nil)
		if !ok {
			return
		}
		account, err := a.opts.Auth.GetAccount(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		scope, _ := auth.AuthorizedScopeFromContext(r.Context())
		writeJSON(w, http.StatusOK, accountView(account, scope))

	case http.MethodDelete:
		r, ok := a.authorize(w, r, []string{auth.PermAdmin, auth.PermAccountDeleteOwner}, id, auth.SelfResolver)
		if !ok {
			return
		}
		if err := a.opts.Auth.DeleteAccount(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.Event(r.Context(), "account.deleted", map[string]any{"account_id": id})
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (req changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.CurrentPassword, validation.Required),
		validation.Field(&req.NewPassword, validation.Required, validation.Length(8, 128)),
	)
}

func (a *API) handleAccountPassword(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	r, ok := a.authorize(w, r, []string{auth.PermAdmin, auth.PermAccountUpdateOwner}, id, auth.SelfResolver)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.opts.Auth.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.Event(r.Context(), "account.password_changed", map[string]any{"account_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAccountRoles(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, ok := a.authorize(w, r, []string{auth.PermAdmin}, "", nil)
	if !ok {
		return
	}
	roles, err := a.opts.Auth.AccountRoles(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handleAccountRoleToggle(w http.ResponseWriter, r *http.Request, id, roleID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	r, ok := a.authorize(w, r, []string{auth.PermAdmin}, "", nil)
	if !ok {
		return
	}
	roles, err := a.opts.Auth.ToggleRole(r.Context(), id, roleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	_ = audit.Event(r.Context(), "account.role_toggled", map[string]any{
		"account_id": id,
		"role_id":    roleID,
	})
	writeJSON(w, http.StatusOK, roles)
}
