// internal/auth/context.go
//
// Editor identity carried on the request context.
//
// Usage
// -----
//
//	// Attach the resolved editor after the ACL lookup.
//	ctx = auth.WithEditor(ctx, auth.Editor{ID: 123, Privileged: true})
//
//	// Downstream code retrieves it.
//	ed, ok := auth.EditorFrom(ctx)   // {123 … true}, true
//
// Notes
// -----
//   - Authentication itself happens upstream.  By the time a request reaches
//     this service the editor id arrives in a trusted header.
//   - Origin is best-effort request metadata copied onto claim messages so
//     reviewers can see where an edit came from.
//   - Two spaces after periods.
package auth

import "context"

// Origin describes where an edit was submitted from.
type Origin struct {
	IP      string `json:"ip,omitempty"`
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Device  string `json:"device,omitempty"`
	Bot     bool   `json:"bot,omitempty"`
}

// Editor is the acting user of a write.
type Editor struct {
	ID         int64
	Roles      []string
	Privileged bool
	Origin     Origin
}

// editorKey is unexported to avoid context-key collisions.
type editorKey struct{}

// WithEditor returns a new context carrying ed.
func WithEditor(ctx context.Context, ed Editor) context.Context {
	return context.WithValue(ctx, editorKey{}, ed)
}

// EditorFrom extracts the editor from ctx.  It returns (Editor{}, false) if
// none is set.
func EditorFrom(ctx context.Context) (Editor, bool) {
	ed, ok := ctx.Value(editorKey{}).(Editor)
	return ed, ok
}
