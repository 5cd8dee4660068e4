package medauth

import "errors"

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is an exported constant or variable used by the authentication engine.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrDoctorNotVerified is an exported constant or variable used by the authentication engine.
	ErrDoctorNotVerified = errors.New("doctor not verified")
	// ErrLicenseExpired is an exported constant or variable used by the authentication engine.
	ErrLicenseExpired = errors.New("medical license expired")
	// ErrLicenseInvalid is an exported constant or variable used by the authentication engine.
	ErrLicenseInvalid = errors.New("medical license invalid")
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInactivityTimeout is an exported constant or variable used by the authentication engine.
	ErrTokenInactivityTimeout = errors.New("token expired due to inactivity")
	// ErrTokenMalformed is an exported constant or variable used by the authentication engine.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrWrongTokenType is an exported constant or variable used by the authentication engine.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrMFARequired is an exported constant or variable used by the authentication engine.
	ErrMFARequired = errors.New("mfa verification required")
	// ErrMFACodeInvalid is an exported constant or variable used by the authentication engine.
	ErrMFACodeInvalid = errors.New("mfa code invalid")
	// ErrMFACodeExpired is an exported constant or variable used by the authentication engine.
	ErrMFACodeExpired = errors.New("mfa code expired")
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrOTPInvalid is an exported constant or variable used by the authentication engine.
	ErrOTPInvalid = errors.New("otp invalid")
	// ErrOTPExpired is an exported constant or variable used by the authentication engine.
	ErrOTPExpired = errors.New("otp expired")
	// ErrAccessDenied is an exported constant or variable used by the authentication engine.
	ErrAccessDenied = errors.New("access denied")
	// ErrRequestNotFound is an exported constant or variable used by the authentication engine.
	ErrRequestNotFound = errors.New("access request not found")
	// ErrRequestNotPending is an exported constant or variable used by the authentication engine.
	ErrRequestNotPending = errors.New("access request not pending")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrInfrastructure is an exported constant or variable used by the authentication engine.
	ErrInfrastructure = errors.New("infrastructure error")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
