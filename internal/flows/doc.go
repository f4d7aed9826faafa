// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunRefresh, RunValidate, RunRevoke, etc.) accepts
// a typed dependency struct and returns a result carrying either the payload or a
// classified failure kind. The Engine maps failure kinds to public errors, metrics
// and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the record stores, token factory/validator,
// blacklist and rate limiter. They do NOT own any of these resources.
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goToken (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
