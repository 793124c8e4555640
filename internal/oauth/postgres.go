package oauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"inkwell.org/internal/auth"
)

var _ Store = (*PGStore)(nil)

// dbtx is the subset of *sql.DB and *sql.Tx the store needs, so the same
// queries run inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
	q  dbtx
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, q: db}
}

// WithinTx runs fn against a transaction-bound Store. Calls made while
// already inside a transaction join it rather than nesting.
func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, &PGStore{db: s.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) FindClient(ctx context.Context, clientID string) (*Client, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, client_id, secret_hash, name, resources, scopes, grants,
		        access_token_ttl_seconds, refresh_token_ttl_seconds, account_id, created_at, updated_at
		 from oauth_clients where client_id=$1`, clientID)

	var (
		c                           Client
		resources, scopes, grants   []byte
		accessTTLSec, refreshTTLSec int64
		accountID                   sql.NullString
	)
	err := row.Scan(&c.ID, &c.ClientID, &c.SecretHash, &c.Name, &resources, &scopes, &grants,
		&accessTTLSec, &refreshTTLSec, &accountID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(resources, &c.Resources)
	_ = json.Unmarshal(scopes, &c.Scopes)
	_ = json.Unmarshal(grants, &c.Grants)
	c.AccessTokenTTL = time.Duration(accessTTLSec) * time.Second
	c.RefreshTokenTTL = time.Duration(refreshTTLSec) * time.Second
	c.AccountID = accountID.String
	return &c, nil
}

// CreateClient registers a client. Used by seeding and administrative tooling.
func (s *PGStore) CreateClient(ctx context.Context, c *Client) error {
	resources, _ := json.Marshal(c.Resources)
	scopes, _ := json.Marshal(c.Scopes)
	grants, _ := json.Marshal(c.Grants)
	var accountID any
	if c.AccountID != "" {
		accountID = c.AccountID
	}
	_, err := s.q.ExecContext(ctx,
		`insert into oauth_clients(id, client_id, secret_hash, name, resources, scopes, grants,
		        access_token_ttl_seconds, refresh_token_ttl_seconds, account_id, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.ClientID, c.SecretHash, c.Name, resources, scopes, grants,
		int64(c.AccessTokenTTL/time.Second), int64(c.RefreshTokenTTL/time.Second),
		accountID, c.CreatedAt, c.UpdatedAt,
	)
	return pgConflict(err)
}

func (s *PGStore) ListScopes(ctx context.Context) ([]Scope, error) {
	return s.scopes(ctx, `select id, name, is_default, created_at from oauth_scopes order by name`)
}

func (s *PGStore) DefaultScopes(ctx context.Context) ([]Scope, error) {
	return s.scopes(ctx, `select id, name, is_default, created_at from oauth_scopes where is_default order by name`)
}

func (s *PGStore) scopes(ctx context.Context, query string) ([]Scope, error) {
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []Scope
	for rows.Next() {
		var sc Scope
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.IsDefault, &sc.CreatedAt); err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

func (s *PGStore) CreateRefreshToken(ctx context.Context, row *RefreshTokenRow) error {
	scopes, _ := json.Marshal(row.Scopes)
	_, err := s.q.ExecContext(ctx,
		`insert into oauth_refresh_tokens(id, value, client_id, account_id, scopes, expires_at, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		row.ID, row.Value, row.ClientID, row.AccountID, scopes, row.ExpiresAt, row.CreatedAt,
	)
	return pgConflict(err)
}

func (s *PGStore) FindRefreshToken(ctx context.Context, value string) (*RefreshTokenRow, error) {
	r := s.q.QueryRowContext(ctx,
		`select id, value, client_id, account_id, scopes, expires_at, created_at
		 from oauth_refresh_tokens where value=$1`, value)

	var (
		row    RefreshTokenRow
		scopes []byte
	)
	err := r.Scan(&row.ID, &row.Value, &row.ClientID, &row.AccountID, &scopes, &row.ExpiresAt, &row.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(scopes, &row.Scopes)
	return &row, nil
}

func (s *PGStore) DeleteRefreshToken(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from oauth_refresh_tokens where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func pgConflict(err error) error {
	if err == nil {
		return nil
	}
	var pge *pgconn.PgError
	if errors.As(err, &pge) && pge.Code == "23505" {
		return fmt.Errorf("%w: %s", auth.ErrConflict, pge.ConstraintName)
	}
	return err
}
