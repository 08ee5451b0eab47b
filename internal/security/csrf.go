package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront-api/internal/common"
)

const defaultCSRFHeader = "X-CSRF-Token"

// CSRF guards endpoints that authenticate with the refresh cookie using the double-submit
// pattern: the X-CSRF-Token header must equal the cookie of the same name. Requests that do not
// carry SessionCookie, such as a refresh token sent in the body, pass through.
type CSRF struct {
	Header        string
	SessionCookie string
}

// Middleware enforces the token on unsafe methods.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	header := strings.TrimSpace(c.Header)
	if header == "" {
		header = defaultCSRFHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if c.SessionCookie == "" {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := r.Cookie(c.SessionCookie); err != nil {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(header))
		cookie, err := r.Cookie(header)
		if token == "" || err != nil || cookie.Value == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_TOKEN_MISSING", "csrf token required", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_TOKEN_INVALID", "csrf token mismatch", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
