// Package blacklist implements the revocation cache consulted before a token's
// signature and expiry are trusted.
//
// Entries live in a Cache with a TTL equal to the remaining natural lifetime of
// what they supersede, so the cache never grows past the set of still-live tokens.
// Existence of an entry is authoritative.
package blacklist
