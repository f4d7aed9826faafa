// Package internal groups the engine's private building blocks.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - directory: YAML-backed static user directory
//   - flows: pure-function orchestrators for every Engine operation
//   - keylock: per-key mutexes for serialized rotation
//   - rate: Redis-backed fixed-window attempt limiter
//   - tokens: claim factory and validator built on the jwt codec
//
// Nothing here appears in the public goToken API.
package internal
