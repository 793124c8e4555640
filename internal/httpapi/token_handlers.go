package httpapi

import (
	"net/http"
	"strings"

	"inkwell.org/internal/audit"
	"inkwell.org/internal/auth"
)

// handleTokens lists the caller's stored tokens. Values are redacted by the
// serialization, so only metadata leaves the server.
func (a *API) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, ok := a.authorize(w, r, nil, "", nil)
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(r.Context())

	tokens, err := a.opts.Auth.Tokens(r.Context(), claims.Subject)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []*auth.Token{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

// handleTokenByID revokes a stored token: admins may revoke any, everyone
// else only their own.
func (a *API) handleTokenByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/tokens/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}

	r, ok := a.authorize(w, r, []string{auth.PermAdmin, auth.PermTokenDeleteOwner}, id, a.opts.TokenOwner)
	if !ok {
		return
	}
	if err := a.opts.Auth.RevokeToken(r.Context(), id); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.Event(r.Context(), "token.revoked", map[string]any{"token_id": id})
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}
