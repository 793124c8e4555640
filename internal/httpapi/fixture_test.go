package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"inkwell.org/internal/auth"
	"inkwell.org/internal/content"
	"inkwell.org/internal/oauth"
)

// apiStore is an in-memory auth.Store for route-level tests.
type apiStore struct {
	mu          sync.Mutex
	accounts    map[string]*auth.Account
	roles       map[string]*auth.Role
	tokens      map[string]*auth.Token
	assignments map[string][]string
}

func newAPIStore() *apiStore {
	return &apiStore{
		accounts:    make(map[string]*auth.Account),
		roles:       make(map[string]*auth.Role),
		tokens:      make(map[string]*auth.Token),
		assignments: make(map[string][]string),
	}
}

func (s *apiStore) Accounts() auth.AccountStore { return &apiAccounts{s} }
func (s *apiStore) Roles() auth.RoleStore       { return &apiRoles{s} }
func (s *apiStore) Tokens() auth.TokenStore     { return &apiTokens{s} }

func (s *apiStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	return fn(ctx, s)
}

type apiAccounts struct{ s *apiStore }

func (a *apiAccounts) Create(_ context.Context, account *auth.Account) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, existing := range a.s.accounts {
		if existing.Email == account.Email {
			return fmt.Errorf("%w: accounts_email_key", auth.ErrConflict)
		}
		if existing.Username == account.Username {
			return fmt.Errorf("%w: accounts_username_key", auth.ErrConflict)
		}
	}
	a.s.accounts[account.ID] = account
	return nil
}

func (a *apiAccounts) Find(ctx context.Context, id string) (*auth.Account, error) {
	a.s.mu.Lock()
	account, ok := a.s.accounts[id]
	a.s.mu.Unlock()
	if !ok {
		return nil, auth.ErrNotFound
	}
	roles, err := a.RolesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	account.Roles = roles
	return account, nil
}

func (a *apiAccounts) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	a.s.mu.Lock()
	var id string
	for _, account := range a.s.accounts {
		if account.Email == email {
			id = account.ID
			break
		}
	}
	a.s.mu.Unlock()
	if id == "" {
		return nil, auth.ErrNotFound
	}
	return a.Find(ctx, id)
}

func (a *apiAccounts) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	a.s.mu.Lock()
	var id string
	for _, account := range a.s.accounts {
		if account.Username == username {
			id = account.ID
			break
		}
	}
	a.s.mu.Unlock()
	if id == "" {
		return nil, auth.ErrNotFound
	}
	return a.Find(ctx, id)
}

func (a *apiAccounts) List(_ context.Context, limit, offset int) ([]*auth.Account, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []*auth.Account
	for _, account := range a.s.accounts {
		out = append(out, account)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *apiAccounts) UpdateStatus(_ context.Context, id string, status auth.AccountStatus) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	account, ok := a.s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	account.Status = status
	return nil
}

func (a *apiAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	account, ok := a.s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	account.PasswordHash = hash
	return nil
}

func (a *apiAccounts) Delete(_ context.Context, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.accounts[id]; !ok {
		return auth.ErrNotFound
	}
	delete(a.s.accounts, id)
	delete(a.s.assignments, id)
	return nil
}

func (a *apiAccounts) AssignRole(_ context.Context, accountID, roleID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.assignments[accountID] = append(a.s.assignments[accountID], roleID)
	return nil
}

func (a *apiAccounts) RemoveRole(_ context.Context, accountID, roleID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var kept []string
	for _, id := range a.s.assignments[accountID] {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	a.s.assignments[accountID] = kept
	return nil
}

func (a *apiAccounts) RolesFor(_ context.Context, accountID string) ([]auth.Role, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var roles []auth.Role
	for _, id := range a.s.assignments[accountID] {
		if role, ok := a.s.roles[id]; ok {
			roles = append(roles, *role)
		}
	}
	return roles, nil
}

type apiRoles struct{ s *apiStore }

func (r *apiRoles) Create(_ context.Context, role *auth.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if existing.Slug == role.Slug {
			return fmt.Errorf("%w: roles_slug_key", auth.ErrConflict)
		}
	}
	r.s.roles[role.ID] = role
	return nil
}

func (r *apiRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return role, nil
}

func (r *apiRoles) List(_ context.Context) ([]*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*auth.Role
	for _, role := range r.s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *apiRoles) ListDefault(_ context.Context) ([]*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*auth.Role
	for _, role := range r.s.roles {
		if role.IsDefault {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *apiRoles) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.roles), nil
}

func (r *apiRoles) Update(_ context.Context, role *auth.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[role.ID]; !ok {
		return auth.ErrNotFound
	}
	r.s.roles[role.ID] = role
	return nil
}

func (r *apiRoles) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.s.roles, id)
	return nil
}

type apiTokens struct{ s *apiStore }

func (t *apiTokens) Create(_ context.Context, token *auth.Token) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.tokens[token.ID] = token
	return nil
}

func (t *apiTokens) Find(_ context.Context, id string) (*auth.Token, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	token, ok := t.s.tokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return token, nil
}

func (t *apiTokens) FindByValue(_ context.Context, value string, typ auth.TokenType) (*auth.Token, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, token := range t.s.tokens {
		if token.Value == value && token.Type == typ {
			return token, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (t *apiTokens) ListByAccount(_ context.Context, accountID string) ([]*auth.Token, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []*auth.Token
	for _, token := range t.s.tokens {
		if token.AccountID == accountID {
			out = append(out, token)
		}
	}
	return out, nil
}

func (t *apiTokens) Delete(_ context.Context, id string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.tokens[id]; !ok {
		return auth.ErrNotFound
	}
	delete(t.s.tokens, id)
	return nil
}

func (t *apiTokens) DeleteByAccountAndType(_ context.Context, accountID string, typ auth.TokenType) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, token := range t.s.tokens {
		if token.AccountID == accountID && token.Type == typ {
			delete(t.s.tokens, id)
		}
	}
	return nil
}

func (t *apiTokens) AccountID(_ context.Context, id string) (string, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	token, ok := t.s.tokens[id]
	if !ok {
		return "", auth.ErrNotFound
	}
	return token.AccountID, nil
}

// apiOAuthStore is an in-memory oauth.Store.
type apiOAuthStore struct {
	mu      sync.Mutex
	clients map[string]*oauth.Client
	scopes  []oauth.Scope
	refresh map[string]*oauth.RefreshTokenRow
}

func newAPIOAuthStore() *apiOAuthStore {
	return &apiOAuthStore{
		clients: make(map[string]*oauth.Client),
		refresh: make(map[string]*oauth.RefreshTokenRow),
	}
}

func (s *apiOAuthStore) FindClient(_ context.Context, clientID string) (*oauth.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return client, nil
}

func (s *apiOAuthStore) ListScopes(_ context.Context) ([]oauth.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]oauth.Scope(nil), s.scopes...), nil
}

func (s *apiOAuthStore) DefaultScopes(_ context.Context) ([]oauth.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []oauth.Scope
	for _, sc := range s.scopes {
		if sc.IsDefault {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *apiOAuthStore) CreateRefreshToken(_ context.Context, row *oauth.RefreshTokenRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[row.ID] = row
	return nil
}

func (s *apiOAuthStore) FindRefreshToken(_ context.Context, value string) (*oauth.RefreshTokenRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.refresh {
		if row.Value == value {
			return row, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *apiOAuthStore) DeleteRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refresh[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.refresh, id)
	return nil
}

func (s *apiOAuthStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx oauth.Store) error) error {
	return fn(ctx, s)
}

// apiPostStore is an in-memory content.Store.
type apiPostStore struct {
	mu    sync.Mutex
	posts map[string]*content.Post
}

func newAPIPostStore() *apiPostStore {
	return &apiPostStore{posts: make(map[string]*content.Post)}
}

func (s *apiPostStore) Create(_ context.Context, post *content.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = post
	return nil
}

func (s *apiPostStore) Find(_ context.Context, id string) (*content.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return post, nil
}

func (s *apiPostStore) List(_ context.Context, limit, offset int) ([]*content.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*content.Post
	for _, post := range s.posts {
		out = append(out, post)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *apiPostStore) Update(_ context.Context, post *content.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; !ok {
		return auth.ErrNotFound
	}
	s.posts[post.ID] = post
	return nil
}

func (s *apiPostStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *apiPostStore) AuthorID(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return "", auth.ErrNotFound
	}
	return post.AuthorID, nil
}

// testAPI bundles the wired handler with direct access to its stores.
type testAPI struct {
	handler    http.Handler
	store      *apiStore
	oauthStore *apiOAuthStore
	posts      *apiPostStore
	issuer     *auth.Issuer
	svc        *auth.Service
	userRole   *auth.Role
	adminRole  *auth.Role
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := newAPIStore()
	oauthStore := newAPIOAuthStore()
	posts := newAPIPostStore()

	issuer, err := auth.NewIssuer([]byte("route-test-signing-secret"), "inkwell-api")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	codec, err := auth.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	now := time.Now().UTC()
	userRole := &auth.Role{
		ID:        "role-user",
		Name:      "User",
		Slug:      "user",
		IsDefault: true,
		Permissions: []string{
			auth.PermAccountRead,
			auth.PermAccountUpdateOwner,
			auth.PermAccountDeleteOwner,
			auth.PermTokenDeleteOwner,
			auth.PermPostUpdateOwner,
			auth.PermPostDeleteOwner,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	adminRole := &auth.Role{
		ID:          "role-admin",
		Name:        "Admin",
		Slug:        "admin",
		Permissions: []string{auth.PermAdmin},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	store.roles[userRole.ID] = userRole
	store.roles[adminRole.ID] = adminRole

	svc, err := auth.NewService(store, issuer, codec)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	roleSvc, err := auth.NewRoleService(store)
	if err != nil {
		t.Fatalf("role service: %v", err)
	}
	oauthSvc, err := oauth.NewService(oauthStore, store.Accounts(), issuer)
	if err != nil {
		t.Fatalf("oauth service: %v", err)
	}
	postSvc, err := content.NewService(posts)
	if err != nil {
		t.Fatalf("content service: %v", err)
	}

	api := New(Options{
		Auth:       svc,
		Roles:      roleSvc,
		OAuth:      oauthSvc,
		Posts:      postSvc,
		Issuer:     issuer,
		Version:    "test",
		TokenOwner: auth.OwnerResolverFunc(store.Tokens().AccountID),
		CORSOrigin: "*",
	})

	return &testAPI{
		handler:    api.Handler(),
		store:      store,
		oauthStore: oauthStore,
		posts:      posts,
		issuer:     issuer,
		svc:        svc,
		userRole:   userRole,
		adminRole:  adminRole,
	}
}

// seedAccount creates an activated account with the given roles assigned and
// returns it together with a signed bearer token.
func (f *testAPI) seedAccount(t *testing.T, email, username, password string, roleIDs ...string) (*auth.Account, string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	account := &auth.Account{
		ID:           "acct-" + username,
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Status:       auth.StatusActivated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.store.mu.Lock()
	f.store.accounts[account.ID] = account
	f.store.assignments[account.ID] = append([]string(nil), roleIDs...)
	f.store.mu.Unlock()

	account, err = f.store.Accounts().Find(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("find seeded account: %v", err)
	}
	token, err := f.issuer.Sign(auth.Claims{
		Email:    account.Email,
		Username: account.Username,
		Scopes:   account.ScopesFromRoles(),
	}, auth.SignOptions{Subject: account.ID})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return account, token
}

func (f *testAPI) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:50000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
