package content

import (
	"context"
	"database/sql"

	"inkwell.org/internal/auth"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const postColumns = `id, author_id, title, body, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, p *Post) error {
	_, err := s.db.ExecContext(ctx,
		`insert into posts(id, author_id, title, body, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6)`,
		p.ID, p.AuthorID, p.Title, p.Body, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Post, error) {
	row := s.db.QueryRowContext(ctx, `select `+postColumns+` from posts where id=$1`, id)
	var p Post
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) List(ctx context.Context, limit, offset int) ([]*Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+postColumns+` from posts order by created_at desc limit $1 offset $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, p *Post) error {
	res, err := s.db.ExecContext(ctx,
		`update posts set title=$2, body=$3, updated_at=$4 where id=$1`,
		p.ID, p.Title, p.Body, p.UpdatedAt,
	)
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

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from posts where id=$1`, id)
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

func (s *PGStore) AuthorID(ctx context.Context, id string) (string, error) {
	var authorID string
	err := s.db.QueryRowContext(ctx, `select author_id from posts where id=$1`, id).Scan(&authorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", auth.ErrNotFound
		}
		return "", err
	}
	return authorID, nil
}
