// Package redisstore implements goGuard.Store on Redis.
//
// Accounts and tokens are versioned binary records. Token keys are the hex
// SHA-256 digest of the raw token; raw tokens never reach Redis. Atomicity
// comes from optimistic WATCH/MULTI/EXEC units: a transaction that loses a
// race is retried a bounded number of times and then fails.
package redisstore
