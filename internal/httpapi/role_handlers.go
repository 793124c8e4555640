package httpapi

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"inkwell.org/internal/audit"
	"inkwell.org/internal/auth"
)

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		r, ok := a.authorize(w, r, []string{auth.PermAdmin}, "", nil)
		if !ok {
			return
		}
		roles, err := a.opts.Roles.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if roles == nil {
			roles = []*auth.Role{}
		}
		writeJSON(w, http.StatusOK, roles)

	case http.MethodPost:
		a.handleRoleCreate(w, r)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type roleRequest struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

func (req roleRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.Length(2, 64)),
		validation.Field(&req.Slug, validation.Length(2, 64)),
	)
}

func (a *API) handleRoleCreate(w http.ResponseWriter, r *http.Request) {
	r, ok := a.authorize(w, r, []string{auth.PermAdmin}, "", nil)
	if !ok {
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	role, err := a.opts.Roles.CreateRole(r.Context(), auth.CreateRoleInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.Event(r.Context(), "role.created", map[string]any{"role_id": role.ID, "slug": role.Slug})
	writeJSON(w, http.StatusCreated, role)
}

// handleRoleSubtree routes /roles/{id} and /roles/{id}/status.
func (a *API) handleRoleSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/roles/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleRoleByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		a.handleRoleStatus(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request, id string) {
	r, ok := a.authorize(w, r, []string{auth.PermAdmin}, "", nil)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		role, err := a.opts.Roles.GetRole(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)

	case http.MethodPut:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		update := auth.UpdateRoleInput{Permissions: req.Permissions}
		if req.Name != "" {
			update.Name = &req.Name
		}
		if req.Description != "" {
			update.Description = &req.Description
		}
		role, err := a.opts.Roles.UpdateRole(r.Context(), id, update)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.Event(r.Context(), "role.updated", map[string]any{"role_id": id})
		writeJSON(w, http.StatusOK, role)

	case http.MethodDelete:
		if err := a.opts.Roles.DeleteRole(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.Event(r.Context(), "role.deleted", map[string]any{"role_id": id})
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRoleStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	r, ok := a.authorize(w, r, []string{auth.PermAdmin}, "", nil)
	if !ok {
		return
	}
	role, err := a.opts.Roles.ToggleStatus(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.Event(r.Context(), "role.status_toggled", map[string]any{
		"role_id":    id,
		"is_default": role.IsDefault,
	})
	writeJSON(w, http.StatusOK, role)
}
