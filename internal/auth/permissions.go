package auth

import "strings"

// Permission values a bearer token can be authorized for. Required-permission
// sets are declared most-to-least privileged; the guard picks the first match.
const (
	PermAdmin              = "ADMIN"
	PermAccountRead        = "ACCOUNT_READ"
	PermAccountUpdateOwner = "ACCOUNT_UPDATE_OWNER"
	PermAccountDeleteOwner = "ACCOUNT_DELETE_OWNER"
	PermTokenDeleteOwner   = "TOKEN_DELETE_OWNER"
	PermPostUpdateOwner    = "POST_UPDATE_OWNER"
	PermPostDeleteOwner    = "POST_DELETE_OWNER"
)

const ownerSuffix = "_OWNER"

// OwnerScoped reports whether a permission carries the implicit constraint
// that the caller must own the target resource.
func OwnerScoped(permission string) bool {
	return strings.HasSuffix(permission, ownerSuffix)
}
