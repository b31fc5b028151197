// Package identity manages the credential and session lifecycle for user
// accounts: registration with mailed email verification, password logins,
// access/refresh token pairs, password resets, and federated identities.
//
// Sessions:
//   - Each account holds at most one active session. The server stores only
//     a one-way fingerprint of the opaque refresh token; issuing a new
//     session overwrites the fingerprint and silently invalidates the
//     previous one.
//   - Access tokens are short-lived signed tokens carrying the user ID as
//     subject. Refresh does not rotate the refresh token.
//
// One-time tokens:
//   - Email verification uses a signed, expiring token. Password resets use
//     an opaque token whose fingerprint and expiry live on the user row; a
//     guarded single-statement update makes consumption atomic and
//     single-use, and a repeat request supersedes the outstanding token.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     command handlers to describe registration, login, refresh, and reset
//     events. Sinks run best-effort (errors are logged) so you can forward
//     to a database or queue without blocking authentication.
//
// The social subpackage resolves OAuth provider profiles to local accounts
// and hands them to the same session manager.
package identity
