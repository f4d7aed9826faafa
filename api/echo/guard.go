package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/middleware"
)

// Guard is the echo form of middleware.Guard: it requires a valid ACCESS
// bearer token and stores the identity in the request context.
func Guard(v middleware.Validator) echo.MiddlewareFunc {
	guard := middleware.Guard(v)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var nextErr error
			guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				nextErr = next(c)
			})).ServeHTTP(c.Response(), c.Request())
			return nextErr
		}
	}
}

// RequireRole rejects identities lacking every listed role. Use after [Guard].
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := goToken.IdentityFromContext(c.Request().Context())
			if !ok {
				middleware.WriteError(c.Response(), goToken.ErrTokenInvalid)
				return nil
			}
			for _, want := range roles {
				for _, have := range id.Roles {
					if have == want {
						return next(c)
					}
				}
			}
			return c.JSON(http.StatusForbidden, middleware.ErrorBody{Error: "forbidden", Code: "forbidden"})
		}
	}
}
