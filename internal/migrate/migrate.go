// Package migrate applies plain-SQL migration and seed scripts from disk,
// tracking what ran in bookkeeping tables so every command is idempotent.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	migrationLedger = "schema_migrations"
	seedLedger      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Runner applies migration and seed scripts against a database.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner reading scripts from the given directories.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies every pending up migration in lexical order.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	return r.apply(ctx, migrationLedger, r.migrationsDir, upSuffix)
}

// Seed applies every pending seed script. Seeds run once, like migrations.
func (r *Runner) Seed(ctx context.Context) ([]string, error) {
	return r.apply(ctx, seedLedger, r.seedsDir, ".sql")
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.ensureLedger(ctx, migrationLedger); err != nil {
		return "", err
	}
	applied, err := r.applied(ctx, migrationLedger)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", errors.New("migrate: nothing to roll back")
	}
	last := applied[len(applied)-1]
	down := strings.TrimSuffix(last, upSuffix) + downSuffix
	path := filepath.Join(r.migrationsDir, down)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("migrate: %s has no down script", last)
	}
	if err := r.runScript(ctx, path); err != nil {
		return "", fmt.Errorf("migrate: roll back %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx, `delete from `+migrationLedger+` where name=$1`, last)
	return last, err
}

// Status returns the applied migrations in order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx, migrationLedger); err != nil {
		return nil, err
	}
	return r.applied(ctx, migrationLedger)
}

func (r *Runner) apply(ctx context.Context, ledger, dir, suffix string) ([]string, error) {
	if err := r.ensureLedger(ctx, ledger); err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx, ledger)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	names, err := listScripts(dir, suffix)
	if err != nil {
		return nil, err
	}
	var ran []string
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.runScript(ctx, filepath.Join(dir, name)); err != nil {
			return ran, fmt.Errorf("migrate: apply %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, `insert into `+ledger+`(name) values($1)`, name); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

// runScript executes one script file inside a transaction, statement by
// statement. The driver rejects multi-statement Exec calls, hence the split.
func (r *Runner) runScript(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitSQL(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) ensureLedger(ctx context.Context, table string) error {
	_, err := r.db.ExecContext(ctx,
		`create table if not exists `+table+`(
			name text primary key,
			applied_at timestamptz not null default now()
		)`)
	return err
}

func (r *Runner) applied(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `select name from `+table+` order by applied_at asc, name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func listScripts(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitSQL breaks a script into statements at semicolons, ignoring semicolons
// inside single-quoted strings and line comments.
func splitSQL(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inQuote  bool
		inDashes bool
	)
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		switch {
		case inDashes:
			if r == '\n' {
				inDashes = false
			}
		case inQuote:
			if r == '\'' {
				inQuote = false
			}
		case r == '\'':
			inQuote = true
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			inDashes = true
		case r == ';':
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts
}
