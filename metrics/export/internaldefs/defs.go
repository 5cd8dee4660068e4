package internaldefs

import (
	medauth "github.com/sentinelmed/medauth"
)

// CounterDef defines a public type used by medauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   medauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by medauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   medauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: medauth.MetricLoginSuccess, Name: "medauth_login_success_total", Help: "Successful login attempts."},
	{ID: medauth.MetricLoginFailure, Name: "medauth_login_failure_total", Help: "Failed login attempts."},
	{ID: medauth.MetricLoginRateLimited, Name: "medauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: medauth.MetricAccountLocked, Name: "medauth_account_locked_total", Help: "Login attempts rejected or tripped by account lockout."},
	{ID: medauth.MetricMFARequired, Name: "medauth_mfa_required_total", Help: "Login flows requiring MFA step-up."},
	{ID: medauth.MetricMFASuccess, Name: "medauth_mfa_success_total", Help: "Successful MFA confirmations."},
	{ID: medauth.MetricMFAFailure, Name: "medauth_mfa_failure_total", Help: "Failed MFA confirmations."},
	{ID: medauth.MetricRefreshSuccess, Name: "medauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: medauth.MetricRefreshFailure, Name: "medauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: medauth.MetricValidateSuccess, Name: "medauth_validate_success_total", Help: "Successful token validations."},
	{ID: medauth.MetricValidateFailure, Name: "medauth_validate_failure_total", Help: "Failed token validations."},
	{ID: medauth.MetricInactivityTimeout, Name: "medauth_inactivity_timeout_total", Help: "Tokens rejected for inactivity."},
	{ID: medauth.MetricLogout, Name: "medauth_logout_total", Help: "Logout operations."},
	{ID: medauth.MetricRateLimitHit, Name: "medauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: medauth.MetricAccessRequested, Name: "medauth_access_requested_total", Help: "Record access requests raised."},
	{ID: medauth.MetricAccessApproved, Name: "medauth_access_approved_total", Help: "Record access requests approved."},
	{ID: medauth.MetricAccessDenied, Name: "medauth_access_denied_total", Help: "Record access requests denied."},
	{ID: medauth.MetricAccessRevoked, Name: "medauth_access_revoked_total", Help: "Access grants revoked."},
	{ID: medauth.MetricAccessCheckAllowed, Name: "medauth_access_check_allowed_total", Help: "Access checks that found a live grant."},
	{ID: medauth.MetricAccessCheckDenied, Name: "medauth_access_check_denied_total", Help: "Access checks that found no live grant."},
	{ID: medauth.MetricEmergencyGranted, Name: "medauth_emergency_granted_total", Help: "Emergency access grants issued."},
	{ID: medauth.MetricEmergencyDenied, Name: "medauth_emergency_denied_total", Help: "Emergency access attempts denied."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: medauth.MetricValidateLatency, Name: "medauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
