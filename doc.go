// Package goToken issues, validates, rotates and revokes bearer tokens: short-lived
// access tokens, single-use rotating refresh tokens and purpose-scoped one-time
// tokens.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goToken is the public surface. It exposes [Engine], [Builder], [Config], the
// [ErrorKind] taxonomy and value types (TokenPair, TokenInfo, MetricsSnapshot).
// Flow orchestration, token minting, rate limiting and audit dispatch live under
// internal/. Record stores and blacklist caches are pluggable through the records
// and blacklist packages.
//
// # Rotation guarantee
//
// A refresh token is redeemed at most once. Concurrent Refresh calls presenting the
// same value yield exactly one success; every other caller receives
// [ErrTokenAlreadyUsedOrRevoked]. The guarantee rests on the record store's
// conditional update, not on in-process locking.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Log or persist raw token values. Stores key records by SHA-256 hash.
//   - Import any sub-package that re-imports goToken (no import cycles).
package goToken
