package auth

import "context"

// OwnerResolver resolves the owning account of a resource, so owner-scoped
// permissions can be enforced against the caller's identity.
type OwnerResolver interface {
	OwnerID(ctx context.Context, resourceID string) (string, error)
}

// OwnerResolverFunc adapts a function to the OwnerResolver interface.
type OwnerResolverFunc func(ctx context.Context, resourceID string) (string, error)

func (f OwnerResolverFunc) OwnerID(ctx context.Context, resourceID string) (string, error) {
	return f(ctx, resourceID)
}

// SelfResolver treats the resource id as the owning account id. Used for
// operations addressing /accounts/{id} directly.
var SelfResolver = OwnerResolverFunc(func(_ context.Context, resourceID string) (string, error) {
	return resourceID, nil
})

// Authorize checks a required-permission declaration against verified claims.
//
// An empty required set allows any authenticated caller. Otherwise the first
// required permission present in the caller's scopes wins; declarations are
// ordered most-to-least privileged by convention. When the matched permission
// is owner-scoped the resource owner must equal the token subject; an
// unresolvable owner denies. Returns the permission that authorized the call.
func Authorize(ctx context.Context, claims *Claims, required []string, resourceID string, resolver OwnerResolver) (string, error) {
	if claims == nil {
		return "", ErrUnauthorized
	}
	if len(required) == 0 {
		return "", nil
	}

	var authorized string
	for _, perm := range required {
		if claims.HasScope(perm) {
			authorized = perm
			break
		}
	}
	if authorized == "" {
		return "", ErrUnauthorized
	}

	if OwnerScoped(authorized) {
		if resolver == nil || resourceID == "" {
			return "", ErrUnauthorized
		}
		ownerID, err := resolver.OwnerID(ctx, resourceID)
		if err != nil || ownerID == "" || ownerID != claims.Subject {
			return "", ErrUnauthorized
		}
	}
	return authorized, nil
}
