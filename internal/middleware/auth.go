package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// queryTokenPaths may carry the token as ?access_token=. Browsers cannot set
// headers on EventSource or WebSocket handshakes.
var queryTokenPaths = map[string]struct{}{
	"/events":    {},
	"/events/ws": {},
}

// BearerAuth rejects requests whose Authorization header does not carry token.
// An empty token disables the check. Paths in public bypass authentication.
func BearerAuth(token string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if !validBearer(r, token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="botkit"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(r *http.Request, token string) bool {
	got := ""
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return false
		}
		got = strings.TrimSpace(value)
	} else if _, ok := queryTokenPaths[r.URL.Path]; ok {
		got = r.URL.Query().Get("access_token")
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
