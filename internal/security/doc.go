// Package security derives a read-only posture report from engine settings.
// It has no I/O and no dependency on the root package.
package security
