package middleware

import (
	"context"
	"net/http"
	"strings"

	goToken "github.com/MrEthical07/goToken"
)

// Validator is the subset of *goToken.Engine the guards need.
type Validator interface {
	Validate(ctx context.Context, token string) (*goToken.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the verified claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*goToken.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*goToken.Claims)
	return c, ok
}

// Guard requires a valid ACCESS token in the Authorization header.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				WriteError(w, goToken.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
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

func authenticate(ctx context.Context, v Validator, token string) (context.Context, error) {
	claims, err := v.Validate(ctx, token)
	if err != nil {
		return ctx, err
	}
	if claims.Type != goToken.TokenAccess {
		return ctx, goToken.ErrTokenInvalid
	}
	id, err := goToken.IdentityFromClaims(claims)
	if err != nil {
		return ctx, err
	}
	ctx = context.WithValue(ctx, claimsContextKey{}, claims)
	return goToken.WithIdentity(ctx, id), nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
