// Package password implements password hashing, verification and policy.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters.
// [Argon2.VerifyDecoy] spends one full verification on a decoy hash so that
// unknown-account paths cost the same as real ones.
//
// # Policy
//
// [Policy] chains [Rule] values: a minimum length that never drops below 8,
// optional maximum length, character classes and a zxcvbn strength score.
// Violations are [*PolicyError] values wrapping [ErrPolicy].
//
// # What this package must NOT do
//
//   - Store or retrieve passwords: callers supply plaintext and receive hashes.
//   - Import any other goGuard package.
//   - Log plaintext passwords.
package password
