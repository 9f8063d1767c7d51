// Package goGuard provides credential recovery and login defense: single-use
// password reset tokens, enumeration-safe forgot-password handling,
// sliding-window attempt throttles and per-account lockout.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config], the
// persistence contracts ([Store], [AccountStore], [TokenStore]) and the
// [Notifier] and [AuditSink] hooks. Flow orchestration, throttling scopes,
// audit dispatch and token encoding live under internal/ and are never
// exported. Store implementations live in store/redisstore and store/pgstore.
//
// # What this package must NOT do
//
//   - Persist or log raw reset tokens, raw identifiers or passwords.
//   - Reveal through return values or timing whether an identifier exists.
//   - Wait on notification delivery.
//   - Import any sub-package that re-imports goGuard (no import cycles).
//
// # Atomicity
//
// Attempt counting is atomic in the counter backend. Token replacement,
// token consumption with the password write, and lockout bookkeeping each run
// inside one [Store.WithinTx] unit. No engine-level locks are held.
package goGuard
