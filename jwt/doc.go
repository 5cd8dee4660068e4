// Package jwt manages issuance and verification of the three typed tokens
// used by medauth (ACCESS, REFRESH, TEMP) with strict validation semantics
// suitable for low-latency authentication paths.
//
// A TEMP token is a partial credential minted after password verification
// when MFA is still pending; it is rejected anywhere an ACCESS token is
// expected. Type confusion is a parse error, not a claims inspection left to
// the caller.
package jwt
