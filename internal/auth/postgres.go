package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// dbtx is the subset of *sql.DB and *sql.Tx the stores need, so the same
// store code runs inside and outside a transaction.
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

func (s *PGStore) Accounts() AccountStore { return &accountStore{q: s.q} }
func (s *PGStore) Roles() RoleStore       { return &roleStore{q: s.q} }
func (s *PGStore) Tokens() TokenStore     { return &tokenStore{q: s.q} }

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

// pgErr maps unique violations to ErrConflict; everything else passes through.
func pgErr(err error) error {
	if err == nil {
		return nil
	}
	var pge *pgconn.PgError
	if errors.As(err, &pge) && pge.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pge.ConstraintName)
	}
	return err
}

// Account store ------------------------------------------------------------
type accountStore struct{ q dbtx }

const accountColumns = `id, email, username, password_hash, status, scopes, created_at, updated_at`

func (s *accountStore) Create(ctx context.Context, a *Account) error {
	scopes, _ := json.Marshal(a.Scopes)
	_, err := s.q.ExecContext(ctx,
		`insert into accounts(id, email, username, password_hash, status, scopes, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.Email, a.Username, a.PasswordHash, a.Status, scopes, a.CreatedAt, a.UpdatedAt,
	)
	return pgErr(err)
}

func (s *accountStore) Find(ctx context.Context, id string) (*Account, error) {
	return s.findBy(ctx, `id=$1`, id)
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findBy(ctx, `email=$1`, email)
}

func (s *accountStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return s.findBy(ctx, `username=$1`, username)
}

func (s *accountStore) findBy(ctx context.Context, where string, arg any) (*Account, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where `+where, arg)
	account, err := scanAccount(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	account.Roles, err = s.RolesFor(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *accountStore) List(ctx context.Context, limit, offset int) ([]*Account, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+accountColumns+` from accounts order by created_at asc limit $1 offset $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if account.Roles, err = s.RolesFor(ctx, account.ID); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

func scanAccount(scan func(dest ...any) error) (*Account, error) {
	var (
		a      Account
		scopes []byte
	)
	if err := scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.Status, &scopes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(scopes, &a.Scopes)
	return &a, nil
}

func (s *accountStore) UpdateStatus(ctx context.Context, id string, status AccountStatus) error {
	res, err := s.q.ExecContext(ctx,
		`update accounts set status=$2, updated_at=now() where id=$1`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *accountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.q.ExecContext(ctx,
		`update accounts set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *accountStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from accounts where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *accountStore) AssignRole(ctx context.Context, accountID, roleID string) error {
	_, err := s.q.ExecContext(ctx,
		`insert into account_roles(account_id, role_id) values($1,$2) on conflict do nothing`,
		accountID, roleID)
	return err
}

func (s *accountStore) RemoveRole(ctx context.Context, accountID, roleID string) error {
	_, err := s.q.ExecContext(ctx,
		`delete from account_roles where account_id=$1 and role_id=$2`, accountID, roleID)
	return err
}

func (s *accountStore) RolesFor(ctx context.Context, accountID string) ([]Role, error) {
	rows, err := s.q.QueryContext(ctx,
		`select r.id, r.name, r.slug, r.description, r.is_default, r.permissions, r.created_at, r.updated_at
		 from roles r join account_roles ar on ar.role_id=r.id
		 where ar.account_id=$1 order by r.created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// Role store ---------------------------------------------------------------
type roleStore struct{ q dbtx }

const roleColumns = `id, name, slug, description, is_default, permissions, created_at, updated_at`

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	perms, _ := json.Marshal(role.Permissions)
	_, err := s.q.ExecContext(ctx,
		`insert into roles(id, name, slug, description, is_default, permissions, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		role.ID, role.Name, role.Slug, role.Description, role.IsDefault, perms, role.CreatedAt, role.UpdatedAt,
	)
	return pgErr(err)
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	row := s.q.QueryRowContext(ctx, `select `+roleColumns+` from roles where id=$1`, id)
	role, err := scanRole(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return role, nil
}

func (s *roleStore) List(ctx context.Context) ([]*Role, error) {
	return s.list(ctx, `select `+roleColumns+` from roles order by created_at asc`)
}

func (s *roleStore) ListDefault(ctx context.Context) ([]*Role, error) {
	return s.list(ctx, `select `+roleColumns+` from roles where is_default order by created_at asc`)
}

func (s *roleStore) list(ctx context.Context, query string) ([]*Role, error) {
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func scanRole(scan func(dest ...any) error) (*Role, error) {
	var (
		role  Role
		perms []byte
	)
	if err := scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.IsDefault, &perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(perms, &role.Permissions)
	return &role, nil
}

func (s *roleStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `select count(*) from roles`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *roleStore) Update(ctx context.Context, role *Role) error {
	perms, _ := json.Marshal(role.Permissions)
	res, err := s.q.ExecContext(ctx,
		`update roles set name=$2, description=$3, is_default=$4, permissions=$5, updated_at=$6 where id=$1`,
		role.ID, role.Name, role.Description, role.IsDefault, perms, role.UpdatedAt,
	)
	if err != nil {
		return pgErr(err)
	}
	return requireRow(res)
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Token store --------------------------------------------------------------
type tokenStore struct{ q dbtx }

const tokenColumns = `id, value, account_id, ip, type, expires_at, created_at`

func (s *tokenStore) Create(ctx context.Context, t *Token) error {
	_, err := s.q.ExecContext(ctx,
		`insert into tokens(id, value, account_id, ip, type, expires_at, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.Value, t.AccountID, t.IP, t.Type, t.ExpiresAt, t.CreatedAt,
	)
	return pgErr(err)
}

func (s *tokenStore) Find(ctx context.Context, id string) (*Token, error) {
	row := s.q.QueryRowContext(ctx, `select `+tokenColumns+` from tokens where id=$1`, id)
	return scanToken(row.Scan)
}

func (s *tokenStore) FindByValue(ctx context.Context, value string, typ TokenType) (*Token, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+tokenColumns+` from tokens where value=$1 and type=$2`, value, typ)
	return scanToken(row.Scan)
}

func scanToken(scan func(dest ...any) error) (*Token, error) {
	var t Token
	if err := scan(&t.ID, &t.Value, &t.AccountID, &t.IP, &t.Type, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *tokenStore) ListByAccount(ctx context.Context, accountID string) ([]*Token, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+tokenColumns+` from tokens where account_id=$1 order by created_at asc`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		t, err := scanToken(rows.Scan)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *tokenStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from tokens where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *tokenStore) DeleteByAccountAndType(ctx context.Context, accountID string, typ TokenType) error {
	_, err := s.q.ExecContext(ctx,
		`delete from tokens where account_id=$1 and type=$2`, accountID, typ)
	return err
}

func (s *tokenStore) AccountID(ctx context.Context, id string) (string, error) {
	var accountID string
	err := s.q.QueryRowContext(ctx, `select account_id from tokens where id=$1`, id).Scan(&accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}
	return accountID, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
