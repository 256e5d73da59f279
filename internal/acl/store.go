// internal/acl/store.go
//
// Editor role lookups.
//
// Context
// -------
// Roles live in one table keyed by editor:
//
//	editor_role (editor_id, role, enabled)
//
// A request needs one answer: which enabled roles does editor X hold?
// Privilege follows from the role names; `admin` and `moderator` write
// canonical fields live and review claims, every other role stages drafts.
//
// Notes
// -----
//   - The store is thin; Identify calls it once per write request.
package acl

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PrivilegedRoles bypass staging.
var PrivilegedRoles = []string{"admin", "moderator"}

// Store reads editor_role.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open handle.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Roles returns the enabled role names bound to editorID.
func (s *Store) Roles(ctx context.Context, editorID int64) ([]string, error) {
	const q = `SELECT role
                 FROM editor_role
                WHERE editor_id = ? AND enabled = TRUE
                ORDER BY role`
	roles := make([]string, 0, 4)
	if err := s.db.SelectContext(ctx, &roles, q, editorID); err != nil {
		return nil, fmt.Errorf("roles of editor %d: %w", editorID, err)
	}
	return roles, nil
}

// Privileged reports whether any of roles is privileged.
func Privileged(roles []string) bool {
	for _, r := range roles {
		for _, p := range PrivilegedRoles {
			if r == p {
				return true
			}
		}
	}
	return false
}
