// Package rate provides Redis-backed fixed-window throttles for token redemption.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - <prefix>:rr:<user id> counts refresh redemptions
//   - <prefix>:ro:<user id> counts one-time redemptions
//
// # What this package must NOT do
//
//   - Decide which failures count; the caller checks before redeeming.
//   - Be imported outside the goToken module.
package rate
