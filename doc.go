// Package medauth provides an authentication and authorization engine for
// medical-records services: credential login with derived account lockout,
// typed JWT access/refresh/temp tokens with an inactivity dimension, one-time
// MFA challenges, and patient-consent access grants including a logged
// emergency override path.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// medauth is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (LoginResult, AuthResult, AccessRequest, AccessPermission).
// Identity persistence stays behind the caller-supplied [UserStore]; national
// identity verification stays behind [IdentityVerifier]. Everything the engine
// itself owns — attempt ledgers, rate windows, token activity, MFA challenges,
// access grants — lives in Redis behind unexported stores.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or key layouts in its public API.
//   - Persist passwords, password hashes, or full national identity numbers
//     in audit output.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
package medauth
