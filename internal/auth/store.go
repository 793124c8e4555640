package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
// WithinTx runs fn against a transaction-bound Store; register, activate and
// refresh rotation rely on it so a crash mid-sequence leaves nothing orphaned.
type Store interface {
	Accounts() AccountStore
	Roles() RoleStore
	Tokens() TokenStore
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// AccountStore manages identity records. Find variants load assigned roles.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	List(ctx context.Context, limit, offset int) ([]*Account, error)
	UpdateStatus(ctx context.Context, id string, status AccountStatus) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	AssignRole(ctx context.Context, accountID, roleID string) error
	RemoveRole(ctx context.Context, accountID, roleID string) error
	RolesFor(ctx context.Context, accountID string) ([]Role, error)
}

// RoleStore manages permission bundles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	ListDefault(ctx context.Context) ([]*Role, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
}

// TokenStore manages opaque token lifecycle. Values are unique; expiration is
// enforced by the service on read, not by background sweeping.
type TokenStore interface {
	Create(ctx context.Context, token *Token) error
	Find(ctx context.Context, id string) (*Token, error)
	FindByValue(ctx context.Context, value string, typ TokenType) (*Token, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Token, error)
	Delete(ctx context.Context, id string) error
	DeleteByAccountAndType(ctx context.Context, accountID string, typ TokenType) error
	AccountID(ctx context.Context, id string) (string, error)
}

// Mailer triggers the activation mail. Fire and forget from the caller's
// point of view; delivery failures are logged, never surfaced to clients.
type Mailer interface {
	SendActivationMail(ctx context.Context, email, username, token string) error
}
