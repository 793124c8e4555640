package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkwell.org/internal/ids"
	"inkwell.org/internal/obs"
)

const (
	defaultRefreshTTL    = 14 * 24 * time.Hour
	defaultActivationTTL = time.Hour

	activationTokenLength = 64
	refreshTokenLength    = 128
)

// AuthResponse is the credential pair returned by login and refresh.
// RefreshToken is the encrypted form; the stored value never leaves the server.
type AuthResponse struct {
	Type         string `json:"type"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Service implements account and token lifecycle: registration, activation,
// login, refresh rotation and revocation.
type Service struct {
	store         Store
	issuer        *Issuer
	codec         *Codec
	mailer        Mailer
	refreshTTL    time.Duration
	activationTTL time.Duration
	now           func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMailer sets the activation mail sender. Without one, activation tokens
// are still minted but only surface in logs.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) { s.mailer = m }
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithActivationTTL overrides the activation token lifetime.
func WithActivationTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.activationTTL = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the auth service.
func NewService(store Store, issuer *Issuer, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: token issuer is required", ErrInvalidInput)
	}
	if codec == nil {
		return nil, fmt.Errorf("%w: token codec is required", ErrInvalidInput)
	}
	s := &Service{
		store:         store,
		issuer:        issuer,
		codec:         codec,
		refreshTTL:    defaultRefreshTTL,
		activationTTL: defaultActivationTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput carries the self-registration fields.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// Register creates an account in created status, grants it the default roles,
// mints an activation token and triggers the activation mail. Account and
// token are created in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput, ip string) (*Account, error) {
	account, err := s.newAccount(ctx, in)
	if err != nil {
		return nil, err
	}

	var activation *Token
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := s.createAccount(ctx, tx, account); err != nil {
			return err
		}
		activation, err = s.replaceToken(ctx, tx, account.ID, ip, ActivateToken)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.sendActivationMail(ctx, account, activation.Value)
	return account, nil
}

// CreateAccount creates an account without an activation token or mail.
// Administrative path; the account stays in created status until activated.
func (s *Service) CreateAccount(ctx context.Context, in RegisterInput) (*Account, error) {
	account, err := s.newAccount(ctx, in)
	if err != nil {
		return nil, err
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		return s.createAccount(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Activate consumes an activation token and moves the account to activated.
// Unknown and expired tokens fail alike; an expired token is deleted on read.
func (s *Service) Activate(ctx context.Context, value string) (*Account, error) {
	var account *Account
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		token, err := tx.Tokens().FindByValue(ctx, value, ActivateToken)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		if token.Expired(s.now()) {
			if err := tx.Tokens().Delete(ctx, token.ID); err != nil {
				return err
			}
			obs.LogEvent(map[string]any{"level": "info", "msg": "activation token expired", "account_id": token.AccountID})
			return ErrUnauthorized
		}
		account, err = tx.Accounts().Find(ctx, token.AccountID)
		if err != nil {
			return err
		}
		if err := tx.Accounts().UpdateStatus(ctx, account.ID, StatusActivated); err != nil {
			return err
		}
		account.Status = StatusActivated
		return tx.Tokens().Delete(ctx, token.ID)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ResendActivation reissues the activation token for a not-yet-activated
// account. Unknown or already activated addresses both report not found, so
// the endpoint does not leak which addresses hold active accounts.
func (s *Service) ResendActivation(ctx context.Context, email, ip string) error {
	account, err := s.store.Accounts().FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return err
	}
	if account.Status == StatusActivated {
		return ErrNotFound
	}

	var activation *Token
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		activation, err = s.replaceToken(ctx, tx, account.ID, ip, ActivateToken)
		return err
	})
	if err != nil {
		return err
	}
	s.sendActivationMail(ctx, account, activation.Value)
	return nil
}

// Attempt verifies email/password credentials and issues a credential pair.
// Every rejection reason other than a pending activation collapses to
// ErrUnauthorized; the distinction lives in the logs only.
func (s *Service) Attempt(ctx context.Context, email, password, ip string) (*AuthResponse, error) {
	account, err := s.store.Accounts().FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.LogEvent(map[string]any{"level": "info", "msg": "login rejected", "reason": "unknown email"})
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if account.Status != StatusActivated {
		obs.LogEvent(map[string]any{"level": "info", "msg": "login rejected", "reason": "account not activated", "account_id": account.ID})
		return nil, ErrForbidden
	}
	if !VerifyPassword(account.PasswordHash, password) {
		obs.LogEvent(map[string]any{"level": "info", "msg": "login rejected", "reason": "password mismatch", "account_id": account.ID})
		return nil, ErrUnauthorized
	}
	return s.generate(ctx, s.store, account, ip)
}

// Generate issues a credential pair for an already authenticated account.
func (s *Service) Generate(ctx context.Context, account *Account, ip string) (*AuthResponse, error) {
	if account == nil {
		return nil, fmt.Errorf("%w: account is required", ErrInvalidInput)
	}
	return s.generate(ctx, s.store, account, ip)
}

// Refresh rotates a refresh token: the presented token is deleted and a fresh
// credential pair is issued, atomically. A reused, expired, tampered or
// unknown token fails with ErrUnauthorized.
func (s *Service) Refresh(ctx context.Context, encrypted, ip string) (*AuthResponse, error) {
	value, err := s.codec.Decrypt(encrypted)
	if err != nil {
		obs.LogEvent(map[string]any{"level": "info", "msg": "refresh rejected", "reason": "undecryptable token"})
		return nil, ErrUnauthorized
	}

	var resp *AuthResponse
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		token, err := tx.Tokens().FindByValue(ctx, value, RefreshToken)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				obs.LogEvent(map[string]any{"level": "info", "msg": "refresh rejected", "reason": "unknown token"})
				return ErrUnauthorized
			}
			return err
		}
		if token.Expired(s.now()) {
			if err := tx.Tokens().Delete(ctx, token.ID); err != nil {
				return err
			}
			obs.LogEvent(map[string]any{"level": "info", "msg": "refresh rejected", "reason": "expired token", "account_id": token.AccountID})
			return ErrUnauthorized
		}
		account, err := tx.Accounts().Find(ctx, token.AccountID)
		if err != nil {
			return err
		}
		if err := tx.Tokens().Delete(ctx, token.ID); err != nil {
			return err
		}
		resp, err = s.generate(ctx, tx, account, ip)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Tokens lists the stored tokens belonging to an account. Values are never
// serialized, so the listing exposes metadata only.
func (s *Service) Tokens(ctx context.Context, accountID string) ([]*Token, error) {
	return s.store.Tokens().ListByAccount(ctx, accountID)
}

// RevokeToken deletes a stored refresh token by id, ending that session.
func (s *Service) RevokeToken(ctx context.Context, id string) error {
	token, err := s.store.Tokens().Find(ctx, id)
	if err != nil {
		return err
	}
	if token.Type != RefreshToken {
		return ErrNotFound
	}
	return s.store.Tokens().Delete(ctx, token.ID)
}

// CheckToken decodes a bearer token without verifying its signature.
// Debugging aid only; nothing may be authorized from the result.
func (s *Service) CheckToken(token string) (*Claims, error) {
	return s.issuer.Decode(token)
}

// ChangePassword verifies the current credential before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return err
	}
	if !VerifyPassword(account.PasswordHash, current) {
		return ErrUnauthorized
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.Accounts().UpdatePassword(ctx, account.ID, hash)
}

// GetAccount returns an account with its roles.
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.store.Accounts().Find(ctx, id)
}

// ListAccounts returns a page of accounts.
func (s *Service) ListAccounts(ctx context.Context, limit, offset int) ([]*Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Accounts().List(ctx, limit, offset)
}

// DeleteAccount removes an account. Its tokens and role assignments go with it.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	return s.store.Accounts().Delete(ctx, id)
}

// AccountRoles returns the roles assigned to an account.
func (s *Service) AccountRoles(ctx context.Context, accountID string) ([]Role, error) {
	if _, err := s.store.Accounts().Find(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Accounts().RolesFor(ctx, accountID)
}

// ToggleRole assigns the role to the account if absent, removes it otherwise,
// and returns the resulting assignment set.
func (s *Service) ToggleRole(ctx context.Context, accountID, roleID string) ([]Role, error) {
	if _, err := s.store.Accounts().Find(ctx, accountID); err != nil {
		return nil, err
	}
	if _, err := s.store.Roles().Find(ctx, roleID); err != nil {
		return nil, err
	}
	roles, err := s.store.Accounts().RolesFor(ctx, accountID)
	if err != nil {
		return nil, err
	}
	assigned := false
	for _, r := range roles {
		if r.ID == roleID {
			assigned = true
			break
		}
	}
	if assigned {
		err = s.store.Accounts().RemoveRole(ctx, accountID, roleID)
	} else {
		err = s.store.Accounts().AssignRole(ctx, accountID, roleID)
	}
	if err != nil {
		return nil, err
	}
	return s.store.Accounts().RolesFor(ctx, accountID)
}

func (s *Service) newAccount(ctx context.Context, in RegisterInput) (*Account, error) {
	email := NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email, username and password are required", ErrInvalidInput)
	}

	if _, err := s.store.Accounts().FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.Accounts().FindByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already taken", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &Account{
		ID:           ids.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Status:       StatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Service) createAccount(ctx context.Context, tx Store, account *Account) error {
	if err := tx.Accounts().Create(ctx, account); err != nil {
		return err
	}
	defaults, err := tx.Roles().ListDefault(ctx)
	if err != nil {
		return err
	}
	for _, role := range defaults {
		if err := tx.Accounts().AssignRole(ctx, account.ID, role.ID); err != nil {
			return err
		}
		account.Roles = append(account.Roles, *role)
	}
	return nil
}

// replaceToken deletes any live token of the given type for the account and
// mints a new one, keeping at most one activation token per account.
func (s *Service) replaceToken(ctx context.Context, tx Store, accountID, ip string, typ TokenType) (*Token, error) {
	if typ == ActivateToken {
		if err := tx.Tokens().DeleteByAccountAndType(ctx, accountID, typ); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	length, ttl := refreshTokenLength, s.refreshTTL
	if typ == ActivateToken {
		length, ttl = activationTokenLength, s.activationTTL
	}
	value, err := RandomToken(length)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	token := &Token{
		ID:        ids.New(),
		Value:     value,
		AccountID: accountID,
		IP:        ip,
		Type:      typ,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := tx.Tokens().Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *Service) generate(ctx context.Context, tx Store, account *Account, ip string) (*AuthResponse, error) {
	signed, err := s.issuer.Sign(Claims{
		Email:    account.Email,
		Username: account.Username,
		Scopes:   account.ScopesFromRoles(),
	}, SignOptions{Subject: account.ID})
	if err != nil {
		return nil, err
	}

	refresh, err := s.replaceToken(ctx, tx, account.ID, ip, RefreshToken)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.codec.Encrypt(refresh.Value)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Type: "Bearer", Token: signed, RefreshToken: encrypted}, nil
}

func (s *Service) sendActivationMail(ctx context.Context, account *Account, token string) {
	if s.mailer == nil {
		obs.LogEvent(map[string]any{"level": "warn", "msg": "no mailer configured, activation token not delivered", "account_id": account.ID})
		return
	}
	if err := s.mailer.SendActivationMail(ctx, account.Email, account.Username, token); err != nil {
		obs.LogEvent(map[string]any{"level": "error", "msg": "activation mail failed", "account_id": account.ID, "error": err.Error()})
	}
}
