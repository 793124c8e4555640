// Package httpapi is the HTTP layer: routing, middleware, authentication and
// the JSON surface over the auth, oauth and content services.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell.org/internal/audit"
	"inkwell.org/internal/auth"
	"inkwell.org/internal/content"
	"inkwell.org/internal/oauth"
	"inkwell.org/internal/obs"
)

const serviceName = "inkwell-api"

// ReadyProbe answers the readiness check, pinging the database when present.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's collaborators and transport settings.
type Options struct {
	Ready   ReadyProbe
	Auth    *auth.Service
	Roles   *auth.RoleService
	OAuth   *oauth.Service
	Posts   *content.Service
	Issuer  *auth.Issuer
	Version string

	// TokenOwner resolves a stored token id to its owning account, for the
	// owner-scoped guard on DELETE /tokens/{id}.
	TokenOwner auth.OwnerResolver

	CORSOrigin     string
	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	opts Options
}

// New builds the router. Middleware is applied in Handler.
func New(opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{mux: http.NewServeMux(), opts: opts}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/register", a.handleRegister)
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/refresh_token", a.handleRefreshToken)
	a.mux.HandleFunc("/auth/activate/", a.handleActivate)
	a.mux.HandleFunc("/auth/check_token", a.handleCheckToken)

	a.mux.HandleFunc("/oauth/token", a.handleOAuthToken)
	a.mux.HandleFunc("/oauth/scopes", a.handleOAuthScopes)

	a.mux.HandleFunc("/tokens", a.handleTokens)
	a.mux.HandleFunc("/tokens/", a.handleTokenByID)

	a.mux.HandleFunc("/accounts", a.handleAccounts)
	a.mux.HandleFunc("/accounts/", a.handleAccountSubtree)

	a.mux.HandleFunc("/roles", a.handleRoles)
	a.mux.HandleFunc("/roles/", a.handleRoleSubtree)

	a.mux.HandleFunc("/posts", a.handlePosts)
	a.mux.HandleFunc("/posts/", a.handlePostByID)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	if a.opts.RateLimitRPS > 0 && a.opts.RateLimitBurst > 0 {
		h = RateLimit(h, a.opts.RateLimitRPS, a.opts.RateLimitBurst)
	}
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = CORS(h, a.opts.CORSOrigin)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- health/info ---

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeJSON reads a strict JSON body. Size is capped upstream by the
// MaxBodyBytes middleware with the configured limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("out of range")
	}
	return val, nil
}

// handleAuthError maps service errors to transport codes. Unauthorized stays
// deliberately featureless; specifics are logged, not returned.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "account is not activated")
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrDecryption):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	default:
		obs.LogEvent(map[string]any{"level": "error", "msg": "internal error", "error": err.Error(), "path": r.URL.Path})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
