package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"inkwell.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/metrics",
	"/auth/register",
	"/auth/login",
	"/auth/refresh_token",
	"/auth/check_token",
	"/oauth/token",
}

var publicPrefixes = []string{
	"/auth/activate/",
}

// withAuth verifies the bearer token on every non-public route and attaches
// the claims to the request context. Route-level permission checks happen in
// the handlers via authorize.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.opts.Issuer == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := a.opts.Issuer.Verify(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize runs the permission guard for a handler. On success the returned
// request carries the authorized scope; on failure a 401 has been written.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, required []string, resourceID string, resolver auth.OwnerResolver) (*http.Request, bool) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	scope, err := auth.Authorize(r.Context(), claims, required, resourceID, resolver)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return r, false
	}
	if scope != "" {
		r = r.WithContext(auth.ContextWithAuthorizedScope(r.Context(), scope))
	}
	return r, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
