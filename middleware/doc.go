// Package middleware exposes HTTP middleware adapters for session and record-access
// enforcement built on top of medauth.Engine validation.
//
// # Guards
//
//   - [Guard] — bearer-token validation for any authenticated route.
//   - [RequireAuthority] — Guard plus a required authority on the validated claims.
//   - [GuardRecordAccess] — per-patient record routes; revalidates the caller's
//     grant against the patient ID extracted from the request.
//
// Each guard reads the Authorization header, calls Engine.Validate (or
// Engine.ValidateRecordAccess), and injects the validated result into the request
// context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself — all decisions are delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine validation.
package middleware
