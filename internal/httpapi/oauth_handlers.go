package httpapi

import (
	"errors"
	"net/http"

	"inkwell.org/internal/audit"
	"inkwell.org/internal/auth"
	"inkwell.org/internal/oauth"
	"inkwell.org/internal/obs"
)

// handleOAuthToken is the RFC 6749 token endpoint. It speaks form encoding in
// and JSON out, and reports failures as {error, error_description} objects.
func (a *API) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, oauth.ErrInvalidRequest.WithDescription("malformed form body"))
		return
	}

	req := oauth.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		Scope:        r.PostFormValue("scope"),
		RefreshToken: r.PostFormValue("refresh_token"),
		IP:           clientIP(r),
	}

	// Client credentials arrive via HTTP Basic or the form, Basic wins.
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID, req.ClientSecret = id, secret
	} else {
		req.ClientID = r.PostFormValue("client_id")
		req.ClientSecret = r.PostFormValue("client_secret")
	}

	resp, err := a.opts.OAuth.Token(r.Context(), req)
	if err != nil {
		obs.ObserveGrant(req.GrantType, "failure")
		var oe *oauth.Error
		if errors.As(err, &oe) {
			writeOAuthError(w, oe)
			return
		}
		obs.LogEvent(map[string]any{"level": "error", "msg": "oauth token error", "error": err.Error()})
		writeOAuthError(w, oauth.ErrServerError)
		return
	}

	obs.ObserveGrant(req.GrantType, "success")
	obs.ObserveTokenIssued("access")
	if resp.RefreshToken != "" {
		obs.ObserveTokenIssued("refresh")
	}
	_ = audit.Event(r.Context(), "oauth.token_issued", map[string]any{
		"grant_type": req.GrantType,
		"client_id":  req.ClientID,
	})

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func writeOAuthError(w http.ResponseWriter, oe *oauth.Error) {
	if oe.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="`+serviceName+`"`)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	payload := map[string]string{"error": oe.Code}
	if oe.Description != "" {
		payload["error_description"] = oe.Description
	}
	writeJSON(w, oe.Status, payload)
}

// handleOAuthScopes lists the registered scopes, for administrators.
func (a *API) handleOAuthScopes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, ok := a.authorize(w, r, []string{auth.PermAdmin}, "", nil)
	if !ok {
		return
	}
	scopes, err := a.opts.OAuth.ListScopes(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if scopes == nil {
		scopes = []oauth.Scope{}
	}
	writeJSON(w, http.StatusOK, scopes)
}
