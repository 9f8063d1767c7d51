// Package stores provides the Redis building blocks behind the Redis account
// and token store: versioned binary record codecs and an optimistic
// unit of work.
//
// # Design
//
// Records are binary-encoded with a leading version byte. [RunUnit] wraps a
// callback in WATCH/MULTI/EXEC: each key is watched before it is read, writes
// are buffered and become visible to later reads in the same unit, and the
// whole callback is retried when a watched key changes before commit.
//
// # Architecture boundaries
//
// This package owns encoding and concurrency control. It does NOT decide
// token validity or lockout policy; those belong to the flow functions in
// internal/flows.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Persist raw tokens; callers pass digests as keys.
package stores
