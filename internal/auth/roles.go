package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inkwell.org/internal/ids"
)

// RoleService manages permission bundles and their default flag.
type RoleService struct {
	store Store
	now   func() time.Time
}

// RoleServiceOption configures a RoleService.
type RoleServiceOption func(*RoleService)

// WithRoleClock overrides the time source, for tests.
func WithRoleClock(now func() time.Time) RoleServiceOption {
	return func(s *RoleService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRoleService constructs a RoleService backed by the given store.
func NewRoleService(store Store, opts ...RoleServiceOption) (*RoleService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	s := &RoleService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateRoleInput carries the fields accepted on role creation.
type CreateRoleInput struct {
	Name        string
	Slug        string
	Description string
	Permissions []string
}

// CreateRole creates a role. The slug defaults to a lowercased, hyphenated
// form of the name. The very first role in the system becomes a default role
// so self-registered accounts always receive at least one.
func (s *RoleService) CreateRole(ctx context.Context, in CreateRoleInput) (*Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(name)
	}

	count, err := s.store.Roles().Count(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		IsDefault:   count == 0,
		Permissions: dedupeScopes(in.Permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRoleInput carries the mutable role fields. Nil means keep as is.
type UpdateRoleInput struct {
	Name        *string
	Description *string
	Permissions []string
}

// UpdateRole applies partial updates to a role.
func (s *RoleService) UpdateRole(ctx context.Context, id string, in UpdateRoleInput) (*Role, error) {
	role, err := s.store.Roles().Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name cannot be empty", ErrInvalidInput)
		}
		role.Name = name
	}
	if in.Description != nil {
		role.Description = strings.TrimSpace(*in.Description)
	}
	if in.Permissions != nil {
		role.Permissions = dedupeScopes(in.Permissions)
	}
	role.UpdatedAt = s.now().UTC()
	if err := s.store.Roles().Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ToggleStatus flips whether the role is granted to newly registered accounts.
func (s *RoleService) ToggleStatus(ctx context.Context, id string) (*Role, error) {
	role, err := s.store.Roles().Find(ctx, id)
	if err != nil {
		return nil, err
	}
	role.IsDefault = !role.IsDefault
	role.UpdatedAt = s.now().UTC()
	if err := s.store.Roles().Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole returns a role by id.
func (s *RoleService) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.store.Roles().Find(ctx, id)
}

// ListRoles returns all roles.
func (s *RoleService) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles().List(ctx)
}

// DefaultRoles returns the roles granted to new registrations.
func (s *RoleService) DefaultRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles().ListDefault(ctx)
}

// DeleteRole removes a role. Assignments to accounts are removed with it.
func (s *RoleService) DeleteRole(ctx context.Context, id string) error {
	return s.store.Roles().Delete(ctx, id)
}
