package auth

import (
	"strings"
	"time"
)

// AccountStatus tracks the activation lifecycle of an account.
// The only transition in scope is created -> activated.
type AccountStatus string

const (
	StatusCreated   AccountStatus = "created"
	StatusActivated AccountStatus = "activated"
)

// Account is the identity record behind every credential operation.
type Account struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"-"`
	Status       AccountStatus `json:"status"`
	// Scopes is the OAuth2 allow-list for this account. Empty means
	// unrestricted; "*" allows any requested scope.
	Scopes    []string  `json:"scopes,omitempty"`
	Roles     []Role    `json:"roles,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address before persistence.
// The original system did this in an ORM hook; here it is explicit.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ScopesFromRoles returns the deduplicated union of permissions across roles.
// Order is not significant.
func (a *Account) ScopesFromRoles() []string {
	seen := make(map[string]struct{})
	var scopes []string
	for _, role := range a.Roles {
		for _, perm := range role.Permissions {
			if _, ok := seen[perm]; ok {
				continue
			}
			seen[perm] = struct{}{}
			scopes = append(scopes, perm)
		}
	}
	return scopes
}

// Role groups permissions under a unique slug.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"is_default"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TokenType discriminates the persisted opaque tokens.
type TokenType string

const (
	ActivateToken TokenType = "activate_token"
	RefreshToken  TokenType = "refresh_token"
)

// Token is an opaque, persisted credential: either an activation token or a
// refresh token. Consumed and deleted exactly once.
type Token struct {
	ID        string    `json:"id"`
	Value     string    `json:"-"`
	AccountID string    `json:"-"`
	IP        string    `json:"-"`
	Type      TokenType `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Slugify derives a role slug from its name.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(slug), "-")
}
