package middleware

import (
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

// Optional attaches the identity of a valid ACCESS bearer token and lets
// requests without an Authorization header through. A present but invalid token
// is still rejected; backend failures are reported as such.
func Optional(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || v == nil {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := BearerToken(header)
			if !ok {
				WriteError(w, goToken.ErrTokenMalformed)
				return
			}
			ctx, err := authenticate(r.Context(), v, token)
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
