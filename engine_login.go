package medauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sentinelmed/medauth/internal/rate"
	"github.com/sentinelmed/medauth/jwt"
)

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// When the identity has MFA enabled the result carries a short-lived
// temporary token and no session tokens; the caller must complete the
// exchange with [Engine.VerifyMFA]. The lockout check runs before any
// credential verification, so attempts against a locked account neither
// confirm nor deny the password.
func (e *Engine) Login(ctx context.Context, email, passwordPlain string) (*LoginResult, error) {
	if e == nil || e.users == nil || e.passwordHash == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.Allow(ctx, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", email, ErrRateLimited, nil)
				e.emitRateLimit(ctx, "login", func() map[string]string {
					return map[string]string{
						"identifier": email,
					}
				})
				return nil, ErrRateLimited
			}
			return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
		}
	}

	locked, err := e.attempts.IsLocked(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if locked {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, false, "", email, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	identity, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.failLogin(ctx, "", email, ip, "user_not_found")
		}
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	ok, err := e.passwordHash.Verify(passwordPlain, identity.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, identity.ID, email, ip, "wrong_password")
	}

	if enabledErr := AccountEnabled(identity); enabledErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, email, enabledErr, nil)
		return nil, enabledErr
	}
	if identity.Role == RoleDoctor && identity.Doctor != nil &&
		!identity.Doctor.LicenseExpiry.IsZero() && e.now().After(identity.Doctor.LicenseExpiry) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, email, ErrLicenseExpired, nil)
		return nil, ErrLicenseExpired
	}

	if err := e.attempts.Record(ctx, email, ip, AttemptSuccess, ""); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	if RequiresMFA(identity) {
		tempToken, err := e.jwtManager.Issue(jwt.IssueParams{
			Type:    jwt.TokenTemp,
			Subject: identity.Email,
			UserID:  identity.ID,
			Role:    string(identity.Role),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
		}
		if _, err := e.mfaStore.Issue(ctx, identity.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
		}

		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFAChallengeIssued, true, identity.ID, identity.Email, nil, nil)
		return &LoginResult{
			MFARequired: true,
			TempToken:   tempToken,
			UserID:      identity.ID,
			Email:       identity.Email,
			Role:        identity.Role,
		}, nil
	}

	accessToken, refreshToken, err := e.issueSessionTokens(ctx, identity, false)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity.ID, identity.Email, nil, nil)
	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       identity.ID,
		Email:        identity.Email,
		Role:         identity.Role,
		Authorities:  AuthoritiesFor(identity),
	}, nil
}

// failLogin records a failed attempt, emits the failure telemetry and
// returns the uniform credential error. Lookup misses and wrong passwords
// are indistinguishable to the caller; only the audit trail keeps the
// reason.
func (e *Engine) failLogin(ctx context.Context, userID, email, ip, reason string) error {
	if err := e.attempts.Record(ctx, email, ip, AttemptFailed, reason); err != nil {
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, email, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})

	failures, err := e.attempts.FailuresSince(ctx, email, e.now().Add(-e.config.Lockout.Window))
	if err == nil && failures >= e.config.Lockout.Threshold {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, false, userID, email, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"failures": fmt.Sprintf("%d", failures),
			}
		})
	}
	return ErrInvalidCredentials
}
