// Package content is the thin publishing layer riding on top of the auth
// core: posts with an owning author, guarded by the same permission scheme
// as every other resource.
package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inkwell.org/internal/auth"
	"inkwell.org/internal/ids"
)

// Post is an authored piece of content.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence contract for posts.
type Store interface {
	Create(ctx context.Context, post *Post) error
	Find(ctx context.Context, id string) (*Post, error)
	List(ctx context.Context, limit, offset int) ([]*Post, error)
	Update(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id string) error
	AuthorID(ctx context.Context, id string) (string, error)
}

// Service manages posts.
type Service struct {
	store Store
	now   func() time.Time
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

// NewService constructs the content service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", auth.ErrInvalidInput)
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateInput carries the fields accepted on post creation.
type CreateInput struct {
	Title string
	Body  string
}

// Create stores a new post owned by the given author.
func (s *Service) Create(ctx context.Context, authorID string, in CreateInput) (*Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", auth.ErrInvalidInput)
	}
	if authorID == "" {
		return nil, fmt.Errorf("%w: author is required", auth.ErrInvalidInput)
	}
	now := s.now().UTC()
	post := &Post{
		ID:        ids.New(),
		AuthorID:  authorID,
		Title:     title,
		Body:      in.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// UpdateInput carries the mutable post fields. Nil means keep as is.
type UpdateInput struct {
	Title *string
	Body  *string
}

// Update applies partial updates to a post.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Post, error) {
	post, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", auth.ErrInvalidInput)
		}
		post.Title = title
	}
	if in.Body != nil {
		post.Body = *in.Body
	}
	post.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Get returns a post by id.
func (s *Service) Get(ctx context.Context, id string) (*Post, error) {
	return s.store.Find(ctx, id)
}

// List returns a page of posts, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// Delete removes a post.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// OwnerID resolves the author of a post, satisfying the guard's owner check.
func (s *Service) OwnerID(ctx context.Context, id string) (string, error) {
	return s.store.AuthorID(ctx, id)
}
