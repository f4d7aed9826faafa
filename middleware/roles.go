package middleware

import (
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

// RequireRole must run after [Guard]. It answers 403 unless the identity holds
// at least one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := goToken.IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, goToken.ErrTokenInvalid)
				return
			}
			if !hasAnyRole(id.Roles, roles) {
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyRole(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
