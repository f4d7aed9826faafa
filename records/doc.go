// Package records persists refresh-token and one-time-token records.
//
// Records are keyed by the SHA-256 hash of the token value; plaintext tokens are
// never stored. Every Store implementation provides an atomic conditional update
// (ConditionalMarkUsed, ConsumeOneTime) so that concurrent redemptions of the same
// token value can succeed at most once:
//
//   - MemoryStore: a single mutex, for tests and single-process deployments.
//   - RedisStore: Lua scripts executed atomically by Redis.
//   - PostgresStore: UPDATE ... WHERE used = false AND revoked = false.
//   - MongoStore: FindOneAndUpdate with the same filter.
package records
