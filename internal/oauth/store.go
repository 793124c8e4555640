package oauth

import "context"

// Store is the persistence contract for clients, scopes and refresh tokens.
// Absence is reported with auth.ErrNotFound so callers share one sentinel.
// WithinTx runs fn against a transaction-bound Store; refresh rotation relies
// on it so the old token and its replacement swap atomically.
type Store interface {
	FindClient(ctx context.Context, clientID string) (*Client, error)
	ListScopes(ctx context.Context) ([]Scope, error)
	DefaultScopes(ctx context.Context) ([]Scope, error)
	CreateRefreshToken(ctx context.Context, row *RefreshTokenRow) error
	FindRefreshToken(ctx context.Context, value string) (*RefreshTokenRow, error)
	DeleteRefreshToken(ctx context.Context, id string) error
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
