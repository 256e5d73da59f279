// internal/middleware/security.go
//
// Security-header middleware for the JSON API.
//
// Sets on every response:
//
//   - Strict-Transport-Security  (2 years, subdomains)
//   - Content-Security-Policy    (nothing may load; responses are data)
//   - X-Frame-Options            (DENY)
//   - X-Content-Type-Options     (nosniff)
//   - Referrer-Policy            (no-referrer)
//   - Cache-Control              (no-store, unless the handler overrides)
//
// Notes
// -----
//   - Headers are set before next.ServeHTTP; anything written after the
//     first byte of the body is ignored by net/http.  Handlers may still
//     overwrite any of them.
package middleware

import "net/http"

var securityHeaders = [...][2]string{
	{"Strict-Transport-Security", "max-age=63072000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}
