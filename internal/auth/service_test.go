package auth

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for exercising service flows without a
// database. WithinTx is not atomic, which the flows under test do not notice.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	roles    map[string]*Role
	tokens   map[string]*Token
	assigned map[string]map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*Account{},
		roles:    map[string]*Role{},
		tokens:   map[string]*Token{},
		assigned: map[string]map[string]bool{},
	}
}

func (m *memStore) Accounts() AccountStore { return &memAccounts{m} }
func (m *memStore) Roles() RoleStore       { return &memRoles{m} }
func (m *memStore) Tokens() TokenStore     { return &memTokens{m} }

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, m)
}

type memAccounts struct{ m *memStore }

func (s *memAccounts) Create(_ context.Context, a *Account) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.accounts {
		if existing.Email == a.Email || existing.Username == a.Username {
			return ErrConflict
		}
	}
	cp := *a
	s.m.accounts[a.ID] = &cp
	return nil
}

func (s *memAccounts) Find(ctx context.Context, id string) (*Account, error) {
	s.m.mu.Lock()
	a, ok := s.m.accounts[id]
	s.m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	roles, _ := s.RolesFor(ctx, id)
	cp.Roles = roles
	return &cp, nil
}

func (s *memAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.m.mu.Lock()
	var id string
	for _, a := range s.m.accounts {
		if a.Email == email {
			id = a.ID
			break
		}
	}
	s.m.mu.Unlock()
	if id == "" {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *memAccounts) FindByUsername(ctx context.Context, username string) (*Account, error) {
	s.m.mu.Lock()
	var id string
	for _, a := range s.m.accounts {
		if a.Username == username {
			id = a.ID
			break
		}
	}
	s.m.mu.Unlock()
	if id == "" {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *memAccounts) List(ctx context.Context, limit, offset int) ([]*Account, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*Account
	for _, a := range s.m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memAccounts) UpdateStatus(_ context.Context, id string, status AccountStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *memAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (s *memAccounts) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.accounts, id)
	delete(s.m.assigned, id)
	return nil
}

func (s *memAccounts) AssignRole(_ context.Context, accountID, roleID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.assigned[accountID] == nil {
		s.m.assigned[accountID] = map[string]bool{}
	}
	s.m.assigned[accountID][roleID] = true
	return nil
}

func (s *memAccounts) RemoveRole(_ context.Context, accountID, roleID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.assigned[accountID], roleID)
	return nil
}

func (s *memAccounts) RolesFor(_ context.Context, accountID string) ([]Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var roles []Role
	for roleID := range s.m.assigned[accountID] {
		if role, ok := s.m.roles[roleID]; ok {
			roles = append(roles, *role)
		}
	}
	return roles, nil
}

type memRoles struct{ m *memStore }

func (s *memRoles) Create(_ context.Context, role *Role) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.roles {
		if existing.Slug == role.Slug {
			return ErrConflict
		}
	}
	cp := *role
	s.m.roles[role.ID] = &cp
	return nil
}

func (s *memRoles) Find(_ context.Context, id string) (*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	role, ok := s.m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (s *memRoles) List(_ context.Context) ([]*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*Role
	for _, role := range s.m.roles {
		cp := *role
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memRoles) ListDefault(_ context.Context) ([]*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*Role
	for _, role := range s.m.roles {
		if role.IsDefault {
			cp := *role
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memRoles) Count(_ context.Context) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return len(s.m.roles), nil
}

func (s *memRoles) Update(_ context.Context, role *Role) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[role.ID]; !ok {
		return ErrNotFound
	}
	cp := *role
	s.m.roles[role.ID] = &cp
	return nil
}

func (s *memRoles) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.roles, id)
	return nil
}

type memTokens struct{ m *memStore }

func (s *memTokens) Create(_ context.Context, t *Token) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.tokens {
		if existing.Value == t.Value {
			return ErrConflict
		}
	}
	cp := *t
	s.m.tokens[t.ID] = &cp
	return nil
}

func (s *memTokens) Find(_ context.Context, id string) (*Token, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTokens) FindByValue(_ context.Context, value string, typ TokenType) (*Token, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, t := range s.m.tokens {
		if t.Value == value && t.Type == typ {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memTokens) ListByAccount(_ context.Context, accountID string) ([]*Token, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*Token
	for _, t := range s.m.tokens {
		if t.AccountID == accountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memTokens) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.tokens[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.tokens, id)
	return nil
}

func (s *memTokens) DeleteByAccountAndType(_ context.Context, accountID string, typ TokenType) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for id, t := range s.m.tokens {
		if t.AccountID == accountID && t.Type == typ {
			delete(s.m.tokens, id)
		}
	}
	return nil
}

func (s *memTokens) AccountID(_ context.Context, id string) (string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.tokens[id]
	if !ok {
		return "", ErrNotFound
	}
	return t.AccountID, nil
}

type captureMailer struct {
	mu    sync.Mutex
	calls int
	token string
}

func (m *captureMailer) SendActivationMail(_ context.Context, _, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.token = token
	return nil
}

func (m *captureMailer) lastToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

type serviceFixture struct {
	svc    *Service
	store  *memStore
	issuer *Issuer
	codec  *Codec
	mailer *captureMailer
	now    *time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := newMemStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	issuer, err := NewIssuer([]byte("service-test-secret"), "inkwell-api", WithIssuerClock(clock))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	codec, err := NewCodec(bytes.Repeat([]byte("c"), 32))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	mailer := &captureMailer{}
	svc, err := NewService(store, issuer, codec, WithMailer(mailer), WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	store.roles["role-user"] = &Role{
		ID:          "role-user",
		Name:        "User",
		Slug:        "user",
		IsDefault:   true,
		Permissions: []string{PermAccountRead, PermAccountUpdateOwner},
	}
	store.roles["role-admin"] = &Role{
		ID:          "role-admin",
		Name:        "Admin",
		Slug:        "admin",
		Permissions: []string{PermAdmin},
	}

	return &serviceFixture{svc: svc, store: store, issuer: issuer, codec: codec, mailer: mailer, now: &now}
}

func (f *serviceFixture) register(t *testing.T) *Account {
	t.Helper()
	account, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "Ada@Example.com",
		Username: "ada",
		Password: "correct horse",
	}, "198.51.100.7")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return account
}

func (f *serviceFixture) activate(t *testing.T) *Account {
	t.Helper()
	f.register(t)
	account, err := f.svc.Activate(context.Background(), f.mailer.lastToken())
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return account
}

func TestRegister(t *testing.T) {
	f := newServiceFixture(t)
	account := f.register(t)

	if account.Email != "ada@example.com" {
		t.Fatalf("email was not normalized: %s", account.Email)
	}
	if account.Status != StatusCreated {
		t.Fatalf("expected created status, got %s", account.Status)
	}
	if len(account.Roles) != 1 || account.Roles[0].Slug != "user" {
		t.Fatalf("default role was not assigned: %+v", account.Roles)
	}
	if f.mailer.calls != 1 {
		t.Fatalf("expected one activation mail, got %d", f.mailer.calls)
	}
	if len(f.mailer.lastToken()) != activationTokenLength {
		t.Fatalf("expected %d char activation token, got %d", activationTokenLength, len(f.mailer.lastToken()))
	}

	stored, err := f.store.Tokens().FindByValue(context.Background(), f.mailer.lastToken(), ActivateToken)
	if err != nil {
		t.Fatalf("activation token not persisted: %v", err)
	}
	if got := stored.ExpiresAt.Sub(stored.CreatedAt); got != defaultActivationTTL {
		t.Fatalf("expected %v activation lifetime, got %v", defaultActivationTTL, got)
	}
	if stored.IP != "198.51.100.7" {
		t.Fatalf("origin ip not recorded: %q", stored.IP)
	}
}

func TestRegisterConflicts(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "ada@example.com", Username: "other", Password: "pw-other",
	}, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email: expected ErrConflict, got %v", err)
	}
	_, err = f.svc.Register(context.Background(), RegisterInput{
		Email: "other@example.com", Username: "ada", Password: "pw-other",
	}, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate username: expected ErrConflict, got %v", err)
	}
}

func TestActivateConsumesToken(t *testing.T) {
	f := newServiceFixture(t)
	account := f.activate(t)

	if account.Status != StatusActivated {
		t.Fatalf("expected activated status, got %s", account.Status)
	}
	if _, err := f.svc.Activate(context.Background(), f.mailer.lastToken()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("reused activation token: expected ErrUnauthorized, got %v", err)
	}
}

func TestActivateExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t)

	*f.now = f.now.Add(defaultActivationTTL + time.Second)
	if _, err := f.svc.Activate(context.Background(), f.mailer.lastToken()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// lazy expiry removed the row
	if _, err := f.store.Tokens().FindByValue(context.Background(), f.mailer.lastToken(), ActivateToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired token still stored: %v", err)
	}
}

func TestActivateUnknownToken(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.Activate(context.Background(), "no-such-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAttempt(t *testing.T) {
	f := newServiceFixture(t)
	account := f.activate(t)

	resp, err := f.svc.Attempt(context.Background(), "ADA@example.com", "correct horse", "203.0.113.9")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if resp.Type != "Bearer" {
		t.Fatalf("unexpected token type: %s", resp.Type)
	}

	claims, err := f.issuer.Verify(resp.Token)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.Subject != account.ID || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.HasScope(PermAccountRead) || !claims.HasScope(PermAccountUpdateOwner) {
		t.Fatalf("role permissions missing from scopes: %v", claims.Scopes)
	}

	value, err := f.codec.Decrypt(resp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token does not decrypt: %v", err)
	}
	if len(value) != refreshTokenLength {
		t.Fatalf("expected %d char refresh value, got %d", refreshTokenLength, len(value))
	}
	stored, err := f.store.Tokens().FindByValue(context.Background(), value, RefreshToken)
	if err != nil {
		t.Fatalf("refresh token not persisted: %v", err)
	}
	if got := stored.ExpiresAt.Sub(stored.CreatedAt); got != defaultRefreshTTL {
		t.Fatalf("expected %v refresh lifetime, got %v", defaultRefreshTTL, got)
	}
}

func TestAttemptRejections(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t)

	if _, err := f.svc.Attempt(context.Background(), "ada@example.com", "correct horse", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("pending account: expected ErrForbidden, got %v", err)
	}

	if _, err := f.svc.Activate(context.Background(), f.mailer.lastToken()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if _, err := f.svc.Attempt(context.Background(), "ada@example.com", "wrong", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad password: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Attempt(context.Background(), "ghost@example.com", "correct horse", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email: expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	f := newServiceFixture(t)
	f.activate(t)

	first, err := f.svc.Attempt(context.Background(), "ada@example.com", "correct horse", "")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	second, err := f.svc.Refresh(context.Background(), first.RefreshToken, "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if _, err := f.issuer.Verify(second.Token); err != nil {
		t.Fatalf("rotated access token does not verify: %v", err)
	}

	// the presented token is single use
	if _, err := f.svc.Refresh(context.Background(), first.RefreshToken, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("reused refresh token: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), second.RefreshToken, ""); err != nil {
		t.Fatalf("rotated token should refresh: %v", err)
	}
}

func TestRefreshRejections(t *testing.T) {
	f := newServiceFixture(t)
	f.activate(t)

	resp, err := f.svc.Attempt(context.Background(), "ada@example.com", "correct horse", "")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	if _, err := f.svc.Refresh(context.Background(), "tampered-ciphertext", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("tampered: expected ErrUnauthorized, got %v", err)
	}

	*f.now = f.now.Add(defaultRefreshTTL + time.Hour)
	if _, err := f.svc.Refresh(context.Background(), resp.RefreshToken, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired: expected ErrUnauthorized, got %v", err)
	}
}

func TestResendActivation(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t)
	firstToken := f.mailer.lastToken()

	if err := f.svc.ResendActivation(context.Background(), "ada@example.com", ""); err != nil {
		t.Fatalf("ResendActivation: %v", err)
	}
	if f.mailer.calls != 2 {
		t.Fatalf("expected a second mail, got %d calls", f.mailer.calls)
	}
	if f.mailer.lastToken() == firstToken {
		t.Fatalf("activation token was not reissued")
	}
	// old token was replaced, not accumulated
	if _, err := f.store.Tokens().FindByValue(context.Background(), firstToken, ActivateToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale activation token survived: %v", err)
	}

	if err := f.svc.ResendActivation(context.Background(), "ghost@example.com", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown email: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Activate(context.Background(), f.mailer.lastToken()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := f.svc.ResendActivation(context.Background(), "ada@example.com", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("activated account: expected ErrNotFound, got %v", err)
	}
}

func TestRevokeToken(t *testing.T) {
	f := newServiceFixture(t)
	account := f.activate(t)

	resp, err := f.svc.Attempt(context.Background(), "ada@example.com", "correct horse", "")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	tokens, err := f.svc.Tokens(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Type != RefreshToken {
		t.Fatalf("expected one refresh token, got %+v", tokens)
	}

	if err := f.svc.RevokeToken(context.Background(), tokens[0].ID); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), resp.RefreshToken, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked token still refreshes: %v", err)
	}
	if err := f.svc.RevokeToken(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeTokenIgnoresActivationTokens(t *testing.T) {
	f := newServiceFixture(t)
	account := f.register(t)

	tokens, err := f.svc.Tokens(context.Background(), account.ID)
	if err != nil || len(tokens) != 1 {
		t.Fatalf("expected the activation token, got %v, %v", tokens, err)
	}
	if err := f.svc.RevokeToken(context.Background(), tokens[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for activation token, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	account := f.activate(t)

	if err := f.svc.ChangePassword(context.Background(), account.ID, "wrong", "new-pass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.svc.ChangePassword(context.Background(), account.ID, "correct horse", "new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.svc.Attempt(context.Background(), "ada@example.com", "new-pass", ""); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := f.svc.Attempt(context.Background(), "ada@example.com", "correct horse", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old password still works: %v", err)
	}
}

func TestToggleRole(t *testing.T) {
	f := newServiceFixture(t)
	account := f.activate(t)

	roles, err := f.svc.ToggleRole(context.Background(), account.ID, "role-admin")
	if err != nil {
		t.Fatalf("ToggleRole: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected admin role assigned, got %+v", roles)
	}

	roles, err = f.svc.ToggleRole(context.Background(), account.ID, "role-admin")
	if err != nil {
		t.Fatalf("ToggleRole: %v", err)
	}
	if len(roles) != 1 || roles[0].ID != "role-user" {
		t.Fatalf("expected admin role removed, got %+v", roles)
	}

	if _, err := f.svc.ToggleRole(context.Background(), account.ID, "no-such-role"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleService(t *testing.T) {
	store := newMemStore()
	svc, err := NewRoleService(store)
	if err != nil {
		t.Fatalf("NewRoleService: %v", err)
	}
	ctx := context.Background()

	first, err := svc.CreateRole(ctx, CreateRoleInput{Name: "Editor In Chief", Permissions: []string{PermAccountRead, PermAccountRead}})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if first.Slug != "editor-in-chief" {
		t.Fatalf("unexpected slug: %s", first.Slug)
	}
	if !first.IsDefault {
		t.Fatalf("first role should be default")
	}
	if len(first.Permissions) != 1 {
		t.Fatalf("permissions were not deduplicated: %v", first.Permissions)
	}

	second, err := svc.CreateRole(ctx, CreateRoleInput{Name: "Admin"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if second.IsDefault {
		t.Fatalf("second role should not be default")
	}

	toggled, err := svc.ToggleStatus(ctx, second.ID)
	if err != nil {
		t.Fatalf("ToggleStatus: %v", err)
	}
	if !toggled.IsDefault {
		t.Fatalf("toggle did not flip the default flag")
	}

	defaults, err := svc.DefaultRoles(ctx)
	if err != nil {
		t.Fatalf("DefaultRoles: %v", err)
	}
	if len(defaults) != 2 {
		t.Fatalf("expected two default roles, got %d", len(defaults))
	}

	name := "Chief"
	updated, err := svc.UpdateRole(ctx, first.ID, UpdateRoleInput{Name: &name, Permissions: []string{PermAdmin}})
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.Name != "Chief" || len(updated.Permissions) != 1 || updated.Permissions[0] != PermAdmin {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := svc.DeleteRole(ctx, second.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if _, err := svc.GetRole(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestScopesFromRoles(t *testing.T) {
	account := &Account{Roles: []Role{
		{Permissions: []string{PermAccountRead, PermAdmin}},
		{Permissions: []string{PermAccountRead, PermTokenDeleteOwner}},
	}}
	scopes := account.ScopesFromRoles()
	if len(scopes) != 3 {
		t.Fatalf("expected deduplicated union, got %v", scopes)
	}
}
