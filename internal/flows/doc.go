// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRequestReset, RunConfirmReset, RunAuthenticate) accepts a
// typed dependency struct and returns results without side-effects beyond those
// dependencies. The engine wires stores, limiters, the password hasher, the
// session signer, metrics and audit into the closures; tests wire fakes.
//
// # Architecture boundaries
//
// Flow functions decide ordering: throttle before lookup, hash before the
// transaction, padding before the audit event. They do NOT own any resource.
// Ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency closures.
package flows
