// Package audit implements event recording for security-relevant operations.
//
// # Components
//
//   - [Event]: structured audit record: timestamp, identity digest, action, outcome, severity.
//   - [Sink]: interface for event consumers (line log, JSON writer, zerolog, Kafka, channel, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//
// The line format written by [LineSink] is
//
//	timestamp | identity_digest | action | outcome
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine and flow functions.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Receive or write raw identifiers; events carry digests only.
//   - Import goGuard or any sibling internal package.
package audit
