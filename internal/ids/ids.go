package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable unique identifier.
// ULIDs keep index locality in postgres while staying opaque to clients.
func New() string {
	return ulid.Make().String()
}
