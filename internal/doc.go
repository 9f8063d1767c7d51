// Package internal contains helper utilities that are intentionally private to goGuard,
// including reset token generation and identity digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flow orchestrators for every Engine operation
//   - limiters: use-site attempt scopes (reset request, reset confirm, login)
//   - rate: sliding-window attempt counters (Redis script, memory)
//   - stores: Redis key layout and binary record codecs shared by store backends
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
