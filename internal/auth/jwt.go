package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultAccessTTL = 15 * time.Minute

// Claims carries the signed bearer token payload. Scopes are the deduplicated
// union of the subject's role permissions; authorities and resources are only
// present on OAuth2-issued tokens.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Username    string   `json:"username,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	Resources   []string `json:"resources,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the claims carry the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// SignOptions override per-token registered claims.
type SignOptions struct {
	Subject   string
	Issuer    string        // defaults to the issuer's own name
	ExpiresIn time.Duration // defaults to the issuer's access TTL
}

// Issuer creates and verifies compact HS256 bearer tokens with a server secret.
type Issuer struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithAccessTTL overrides the default access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithIssuerClock overrides the time source, for tests.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer constructs an Issuer signing with the given server secret.
func NewIssuer(secret []byte, issuer string, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is required", ErrInvalidInput)
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("%w: issuer name is required", ErrInvalidInput)
	}
	i := &Issuer{
		secret:    secret,
		issuer:    issuer,
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// Sign mints a compact signed token for the given claims.
func (i *Issuer) Sign(claims Claims, opts SignOptions) (string, error) {
	if strings.TrimSpace(opts.Subject) == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	ttl := opts.ExpiresIn
	if ttl <= 0 {
		ttl = i.accessTTL
	}
	issuer := opts.Issuer
	if issuer == "" {
		issuer = i.issuer
	}

	now := i.now().UTC()
	claims.Scopes = dedupeScopes(claims.Scopes)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   opts.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the trusted claims.
// This is the guard path; introspection uses Decode instead.
func (i *Issuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Decode extracts claims without verifying the signature. Inspection only:
// callers must never authorize anything based on decoded-but-unverified claims.
func (i *Issuer) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed token", ErrInvalidInput)
	}
	return claims, nil
}

func dedupeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	var out []string
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
