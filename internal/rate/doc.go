// Package rate provides sliding-window attempt counters used by the reset and
// login throttles.
//
// # Window semantics
//
// A window query counts attempts in [now-window, now]. [Sliding] keeps one
// Redis sorted set per identity (score = microseconds) and runs trim, count
// and conditional insert as one Lua script, so check-and-increment is a single
// atomic step even across processes. Keys expire after max(2*window, Retention).
//
// [Memory] gives the same semantics inside one process.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Hash or normalize identities; callers pass opaque keys.
//   - Be imported outside the goGuard module.
package rate
