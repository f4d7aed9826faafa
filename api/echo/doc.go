// Package echo exposes the goToken Engine over HTTP with labstack/echo.
//
// Routes (see [TokenAPI.RegisterRoutes]):
//
//	POST /v1/tokens                  issue a pair          (trusted callers, X-Issue-Key)
//	POST /v1/tokens/refresh          rotate a refresh token
//	POST /v1/tokens/revoke           revoke one token
//	POST /v1/tokens/introspect       describe a token
//	GET  /v1/tokens/me               identity of the bearer access token
//	POST /v1/users/:id/revoke-all    revoke a user's refresh tokens (ADMIN bearer)
//	POST /v1/one-time                issue a one-time token (trusted callers)
//	POST /v1/one-time/redeem         redeem a one-time token
package echo
