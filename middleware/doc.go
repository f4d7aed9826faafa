// Package middleware exposes net/http adapters over goToken.Engine validation.
//
// # Guards
//
//   - [Guard] rejects requests without a valid ACCESS bearer token.
//   - [Optional] attaches the identity when a valid token is present and passes
//     anonymous requests through.
//   - [RequireRole] rejects identities lacking every listed role.
//
// Guards read the Authorization header, call Engine.Validate and place the
// verified identity in the request context with goToken.WithIdentity. Handlers
// read it back with goToken.IdentityFromContext.
//
// # Errors
//
// [StatusFor] maps goToken error kinds to HTTP status codes and [WriteError]
// renders the JSON error body shared by the daemon handlers.
package middleware
