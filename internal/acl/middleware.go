// internal/acl/middleware.go
//
// Chi middleware that resolves the acting editor.

package acl

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/auth"
)

// RoleSource answers role lookups.  *Store satisfies it.
type RoleSource interface {
	Roles(ctx context.Context, editorID int64) ([]string, error)
}

// OriginSource describes where a request came from.
type OriginSource interface {
	Origin(r *http.Request) auth.Origin
}

// Identify reads the editor id from the trusted header, loads its roles,
// and attaches an auth.Editor.  Requests without the header pass through
// anonymous; a malformed id is rejected.
func Identify(header string, roles RoleSource, origins OriginSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(header)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			names, err := roles.Roles(r.Context(), id)
			if err != nil {
				zap.L().Error("acl editor roles", zap.Int64("editor_id", id), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			ed := auth.Editor{ID: id, Roles: names, Privileged: Privileged(names)}
			if origins != nil {
				ed.Origin = origins.Origin(r)
			}
			next.ServeHTTP(w, r.WithContext(auth.WithEditor(r.Context(), ed)))
		})
	}
}

// RequireEditor rejects anonymous requests.
func RequireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.EditorFrom(r.Context()); !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePrivileged admits only privileged editors.
func RequirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ed, ok := auth.EditorFrom(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if !ed.Privileged {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
