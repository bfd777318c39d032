// Package identity manages accounts and their credential lifecycle:
// registration, mail verification keys, password hashing and reset, and
// the visibility level that governs profile exposure.
//
// Account lifecycle:
//   - Manager is the single creation path. Create validates and
//     normalizes the email, hashes the password with bcrypt, persists the
//     account, then starts the verification cycle and mails the
//     activation key. CreatePrivileged takes the identical path with the
//     staff flag set; privilege does not skip verification.
//   - Verification state is derived from the persisted columns: a
//     non-empty activation_key with a key_expires_at timestamp means a
//     cycle is pending. Starting a new cycle unconditionally supersedes
//     the previous key. Confirm is a single-statement compare-and-set and
//     reports one undifferentiated error for wrong, expired, or absent
//     keys.
//   - ResetPassword issues a generated temporary password and mails the
//     plaintext. The temporary password is neither single use nor
//     short-lived; that is inherited behavior, documented rather than
//     silently changed.
//
// Persistence and notification are not transactionally coupled: once the
// account mutation commits, a mail delivery failure surfaces as a
// DispatchError next to the mutated record, and retry policy belongs to
// the caller.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the Manager,
//     the authentication service, and the command handlers to describe
//     lifecycle, login, verification, and password reset events. Sinks
//     run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking the flow.
package identity
