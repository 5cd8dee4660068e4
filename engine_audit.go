package medauth

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginRateLimited   = "login_rate_limited"
	auditEventAccountLocked      = "account_locked"
	auditEventAccountUnlocked    = "account_unlocked"
	auditEventMFAChallengeIssued = "mfa_challenge_issued"
	auditEventMFASuccess         = "mfa_success"
	auditEventMFAFailure         = "mfa_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventLogout             = "logout"
	auditEventTokenRejected      = "token_rejected"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventAccessRequested    = "access_requested"
	auditEventAccessApproved     = "access_approved"
	auditEventAccessDenied       = "access_denied"
	auditEventAccessRevoked      = "access_revoked"
	auditEventAccessRejected     = "record_access_rejected"
	auditEventEmergencyGranted   = "emergency_access_granted"
	auditEventEmergencyDenied    = "emergency_access_denied"
)

// AuditErrorCode defines a public type used by medauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrDoctorNotVerified  AuditErrorCode = "doctor_not_verified"
	auditErrLicenseExpired     AuditErrorCode = "license_expired"
	auditErrLicenseInvalid     AuditErrorCode = "license_invalid"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenInactivity    AuditErrorCode = "token_inactivity_timeout"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrMFARequired        AuditErrorCode = "mfa_required"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrOTPInvalid         AuditErrorCode = "otp_invalid"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrAccessDenied       AuditErrorCode = "access_denied"
	auditErrRequestNotFound    AuditErrorCode = "request_not_found"
	auditErrRequestNotPending  AuditErrorCode = "request_not_pending"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrDoctorNotVerified):
		return auditErrDoctorNotVerified
	case errors.Is(err, ErrLicenseExpired):
		return auditErrLicenseExpired
	case errors.Is(err, ErrLicenseInvalid):
		return auditErrLicenseInvalid
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInactivityTimeout):
		return auditErrTokenInactivity
	case errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrWrongTokenType):
		return auditErrInvalidToken
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFACodeInvalid),
		errors.Is(err, ErrMFACodeExpired):
		return auditErrMFAInvalid
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrOTPInvalid):
		return auditErrOTPInvalid
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrAccessDenied):
		return auditErrAccessDenied
	case errors.Is(err, ErrRequestNotFound):
		return auditErrRequestNotFound
	case errors.Is(err, ErrRequestNotPending):
		return auditErrRequestNotPending
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInfrastructure):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

// maskNationalID keeps only the last four characters of a national identity
// number. Shorter values are masked entirely.
func maskNationalID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 4 {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}

func (e *Engine) verifyDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.config.Access.VerifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
