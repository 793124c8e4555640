package oauth

import (
	"strings"
	"time"
)

// Grant type identifiers per RFC 6749. AuthorizationCode and Implicit are
// declared for completeness but the token endpoint rejects them.
const (
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
	GrantAuthorizationCode = "authorization_code"
	GrantImplicit          = "implicit"
)

// Client is a registered OAuth2 consumer. The secret is stored hashed.
// AccountID is the owning account, used as the subject for the
// client_credentials grant.
type Client struct {
	ID              string        `json:"id"`
	ClientID        string        `json:"client_id"`
	SecretHash      string        `json:"-"`
	Name            string        `json:"name"`
	Resources       []string      `json:"resources,omitempty"`
	Scopes          []string      `json:"scopes,omitempty"`
	Grants          []string      `json:"grants"`
	AccessTokenTTL  time.Duration `json:"-"`
	RefreshTokenTTL time.Duration `json:"-"`
	AccountID       string        `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AllowsGrant reports whether the client may use the given grant type.
func (c *Client) AllowsGrant(grant string) bool {
	for _, g := range c.Grants {
		if g == grant {
			return true
		}
	}
	return false
}

// Scope is a globally enumerable capability name.
type Scope struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshTokenRow is a persisted OAuth2 refresh token, bound to the client
// that issued it.
type RefreshTokenRow struct {
	ID        string
	Value     string
	ClientID  string
	AccountID string
	Scopes    []string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the row is past its expiry at the given instant.
func (r *RefreshTokenRow) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TokenResponse is the RFC 6749 access token response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ParseScope splits a requested scope string into tokens. Comma and
// whitespace both delimit; empty tokens are dropped.
func ParseScope(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
