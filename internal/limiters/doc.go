// Package limiters provides use-site attempt budgets built on top of the
// internal/rate counters.
//
// # Limiters
//
//   - [RecoveryLimiter]: per-IP + per-identifier for reset requests, per-IP for confirmations.
//   - [LoginLimiter]: per-IP for every login attempt, known identity or not.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own key namespace and error types. Windows and budgets
// come from Config structs supplied at construction time. Keys are digests; the
// limiters never see raw IPs or identifiers.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting: flow functions decide consequences.
package limiters
