package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkwell.org/internal/auth"
	"inkwell.org/internal/ids"
	"inkwell.org/internal/obs"
)

const refreshTokenLength = 64

// Service implements the grant model behind the token endpoint: client and
// user authentication, scope negotiation and token minting.
type Service struct {
	store    Store
	accounts auth.AccountStore
	issuer   *auth.Issuer
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the grant service.
func NewService(store Store, accounts auth.AccountStore, issuer *auth.Issuer, opts ...ServiceOption) (*Service, error) {
	if store == nil || accounts == nil || issuer == nil {
		return nil, fmt.Errorf("%w: store, account store and issuer are required", auth.ErrInvalidInput)
	}
	s := &Service{store: store, accounts: accounts, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TokenRequest carries the form parameters of an RFC 6749 token request.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Scope        string
	RefreshToken string
	IP           string
}

// Token executes a grant request end to end and returns the access token
// response. All failures are *Error values carrying an RFC 6749 code.
func (s *Service) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType == "" {
		return nil, ErrInvalidRequest.WithDescription("grant_type is required")
	}
	if req.ClientID == "" {
		return nil, ErrInvalidRequest.WithDescription("client credentials are required")
	}

	client, err := s.GetClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(req.GrantType) {
		return nil, ErrUnauthorizedClient.WithDescription("grant type not allowed for this client")
	}

	var (
		account    *auth.Account
		scopes     []string
		rotatedRow string
	)
	switch req.GrantType {
	case GrantPassword:
		if req.Username == "" || req.Password == "" {
			return nil, ErrInvalidRequest.WithDescription("username and password are required")
		}
		account, err = s.GetUser(ctx, req.Username, req.Password)
		if err != nil {
			return nil, err
		}
		scopes, err = s.ValidateScope(ctx, account, client, req.Scope)
		if err != nil {
			return nil, err
		}

	case GrantClientCredentials:
		account, err = s.clientAccount(ctx, client)
		if err != nil {
			return nil, err
		}
		scopes, err = s.ValidateScope(ctx, account, client, req.Scope)
		if err != nil {
			return nil, err
		}

	case GrantRefreshToken:
		if req.RefreshToken == "" {
			return nil, ErrInvalidRequest.WithDescription("refresh_token is required")
		}
		row, err := s.GetRefreshToken(ctx, req.RefreshToken)
		if err != nil {
			return nil, err
		}
		if row.ClientID != client.ID {
			obs.LogEvent(map[string]any{"level": "info", "msg": "oauth refresh rejected", "reason": "client mismatch", "client_id": client.ClientID})
			return nil, ErrInvalidGrant.WithDescription("refresh token was not issued to this client")
		}
		account, err = s.accounts.Find(ctx, row.AccountID)
		if err != nil {
			return nil, ErrInvalidGrant
		}
		rotatedRow = row.ID
		scopes = row.Scopes

	case GrantAuthorizationCode, GrantImplicit:
		return nil, ErrUnsupportedGrantType.WithDescription(req.GrantType + " grant is not supported")

	default:
		return nil, ErrUnsupportedGrantType
	}

	access, expiresIn, err := s.GenerateAccessToken(client, account, scopes)
	if err != nil {
		return nil, ErrServerError
	}

	resp := &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiresIn / time.Second),
		Scope:       strings.Join(scopes, " "),
	}

	// client_credentials sessions are re-established with the secret, so no
	// refresh token is issued for them
	if req.GrantType != GrantClientCredentials {
		value, err := s.GenerateRefreshToken()
		if err != nil {
			return nil, ErrServerError
		}
		// Rotation deletes the presented token and persists its replacement in
		// one transaction; a failure leaves the old token valid.
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
			if rotatedRow != "" {
				if err := tx.DeleteRefreshToken(ctx, rotatedRow); err != nil {
					return err
				}
			}
			return s.saveToken(ctx, tx, value, client, account, scopes)
		})
		if err != nil {
			return nil, ErrServerError
		}
		resp.RefreshToken = value
	}
	return resp, nil
}

// GetClient authenticates a client. An unknown client id and a wrong secret
// report distinct codes; neither reveals which part was wrong beyond that.
func (s *Service) GetClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.store.FindClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, ErrServerError
	}
	if !auth.VerifyPassword(client.SecretHash, clientSecret) {
		return nil, ErrUnauthorizedClient
	}
	return client, nil
}

// GetUser authenticates resource owner credentials for the password grant.
// Any failure collapses to access_denied.
func (s *Service) GetUser(ctx context.Context, username, password string) (*auth.Account, error) {
	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, ErrServerError
	}
	if !auth.VerifyPassword(account.PasswordHash, password) {
		return nil, ErrAccessDenied
	}
	return account, nil
}

// ValidateScope negotiates the requested scope against the client's and the
// account's allow-lists. When neither side carries an allow-list the grant
// collapses to the system default scopes, whatever was requested. An empty
// request also resolves to the defaults. A "*" entry in an allow-list
// disables that list's check. Any violation denies outright; there is no
// partial grant.
func (s *Service) ValidateScope(ctx context.Context, account *auth.Account, client *Client, requested string) ([]string, error) {
	if len(client.Scopes) == 0 && (account == nil || len(account.Scopes) == 0) {
		return s.systemDefaultScopes(ctx)
	}
	scopes := ParseScope(requested)
	if len(scopes) == 0 {
		var err error
		scopes, err = s.systemDefaultScopes(ctx)
		if err != nil {
			return nil, err
		}
	}
	if err := checkAllowList(scopes, client.Scopes); err != nil {
		return nil, err
	}
	if account != nil {
		if err := checkAllowList(scopes, account.Scopes); err != nil {
			return nil, err
		}
	}
	return scopes, nil
}

func (s *Service) systemDefaultScopes(ctx context.Context) ([]string, error) {
	defaults, err := s.store.DefaultScopes(ctx)
	if err != nil {
		return nil, ErrServerError
	}
	names := make([]string, 0, len(defaults))
	for _, sc := range defaults {
		names = append(names, sc.Name)
	}
	if len(names) == 0 {
		return nil, ErrInvalidScope.WithDescription("no default scope configured")
	}
	return names, nil
}

func checkAllowList(requested, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if a == "*" {
			return nil
		}
	}
	for _, scope := range requested {
		found := false
		for _, a := range allowed {
			if a == scope {
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidScope.WithDescription("scope " + scope + " is not allowed")
		}
	}
	return nil
}

// GenerateAccessToken mints the signed access token for a grant. The token is
// issued in the client's name with the client's lifetime.
func (s *Service) GenerateAccessToken(client *Client, account *auth.Account, scopes []string) (string, time.Duration, error) {
	ttl := client.AccessTokenTTL
	if ttl <= 0 {
		ttl = s.issuer.AccessTTL()
	}
	token, err := s.issuer.Sign(auth.Claims{
		Authorities: []string{},
		Scopes:      scopes,
		Resources:   client.Resources,
	}, auth.SignOptions{
		Subject:   account.ID,
		Issuer:    client.ClientID,
		ExpiresIn: ttl,
	})
	if err != nil {
		return "", 0, err
	}
	return token, ttl, nil
}

// GenerateRefreshToken returns a new opaque refresh token value.
func (s *Service) GenerateRefreshToken() (string, error) {
	return auth.RandomToken(refreshTokenLength)
}

// SaveToken persists a refresh token row bound to the issuing client.
func (s *Service) SaveToken(ctx context.Context, value string, client *Client, account *auth.Account, scopes []string) error {
	return s.saveToken(ctx, s.store, value, client, account, scopes)
}

func (s *Service) saveToken(ctx context.Context, store Store, value string, client *Client, account *auth.Account, scopes []string) error {
	ttl := client.RefreshTokenTTL
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	now := s.now().UTC()
	return store.CreateRefreshToken(ctx, &RefreshTokenRow{
		ID:        ids.New(),
		Value:     value,
		ClientID:  client.ID,
		AccountID: account.ID,
		Scopes:    scopes,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
}

// GetAccessToken always reports not found. Access tokens are stateless and
// never looked up by value; the method exists to complete the callback
// surface, and the limitation is deliberate.
func (s *Service) GetAccessToken(context.Context, string) (*RefreshTokenRow, error) {
	return nil, auth.ErrNotFound
}

// GetRefreshToken resolves a presented refresh token value. Expired rows are
// deleted on read and reported as invalid_grant.
func (s *Service) GetRefreshToken(ctx context.Context, value string) (*RefreshTokenRow, error) {
	row, err := s.store.FindRefreshToken(ctx, value)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, ErrServerError
	}
	if row.Expired(s.now()) {
		if err := s.store.DeleteRefreshToken(ctx, row.ID); err != nil {
			return nil, ErrServerError
		}
		return nil, ErrInvalidGrant.WithDescription("refresh token expired")
	}
	return row, nil
}

// ListScopes enumerates the registered scopes.
func (s *Service) ListScopes(ctx context.Context) ([]Scope, error) {
	return s.store.ListScopes(ctx)
}

func (s *Service) clientAccount(ctx context.Context, client *Client) (*auth.Account, error) {
	if client.AccountID == "" {
		return nil, ErrInvalidGrant.WithDescription("client has no associated account")
	}
	account, err := s.accounts.Find(ctx, client.AccountID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, ErrInvalidGrant.WithDescription("client has no associated account")
		}
		return nil, ErrServerError
	}
	return account, nil
}
