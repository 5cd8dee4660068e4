package medauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sentinelmed/medauth/internal/rate"
	"github.com/sentinelmed/medauth/jwt"
	"github.com/sentinelmed/medauth/password"
)

// Engine defines a public type used by medauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	attempts     *loginAttemptLedger
	rateLimiter  *rate.Limiter
	activity     *tokenActivityStore
	mfaStore     *mfaChallengeStore
	grants       *accessGrantStore
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	users        UserStore
	verifier     IdentityVerifier
	clock        func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// issueSessionTokens mints a full access/refresh pair for a fully
// authenticated identity and seeds the access token's activity window.
func (e *Engine) issueSessionTokens(ctx context.Context, identity *Identity, mfaVerified bool) (string, string, error) {
	authorities := AuthoritiesFor(identity)

	accessToken, err := e.jwtManager.Issue(jwt.IssueParams{
		Type:        jwt.TokenAccess,
		Subject:     identity.Email,
		UserID:      identity.ID,
		Role:        string(identity.Role),
		Authorities: authorities,
		MFAVerified: mfaVerified,
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	refreshToken, err := e.jwtManager.Issue(jwt.IssueParams{
		Type:        jwt.TokenRefresh,
		Subject:     identity.Email,
		UserID:      identity.ID,
		Role:        string(identity.Role),
		MFAVerified: mfaVerified,
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	if err := e.activity.Seed(ctx, accessToken); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	return accessToken, refreshToken, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrWrongType):
		return ErrWrongTokenType
	default:
		return ErrTokenMalformed
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A successful validation counts as activity and extends the token's
// inactivity window. A token whose signature and expiry are still valid but
// whose activity entry has lapsed fails with [ErrTokenInactivityTimeout].
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil || e.activity == nil {
		return nil, ErrEngineNotReady
	}
	start := e.now()

	claims, err := e.jwtManager.Parse(accessToken, jwt.TokenAccess)
	if err != nil {
		mapped := mapParseError(err)
		e.metricInc(MetricValidateFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"token_type": string(jwt.TokenAccess),
			}
		})
		return nil, mapped
	}

	if err := e.activity.Touch(ctx, accessToken); err != nil {
		if errors.Is(err, errActivityMissing) {
			e.metricInc(MetricValidateFailure)
			e.metricInc(MetricInactivityTimeout)
			e.emitAudit(ctx, auditEventTokenRejected, false, claims.UserID, claims.Subject, ErrTokenInactivityTimeout, func() map[string]string {
				return map[string]string{
					"token_type": string(jwt.TokenAccess),
					"reason":     "inactivity",
				}
			})
			return nil, ErrTokenInactivityTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	e.metricInc(MetricValidateSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	}
	return &AuthResult{
		UserID:      claims.UserID,
		Email:       claims.Subject,
		Role:        Role(claims.Role),
		Authorities: claims.Authorities,
		MFAVerified: claims.MFAVerified,
	}, nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The identity is reloaded and its authorities re-derived at refresh time,
// so role or verification changes made after login take effect on the next
// refresh rather than persisting for the refresh token's full lifetime.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.jwtManager == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(refreshToken, jwt.TokenRefresh)
	if err != nil {
		mapped := mapParseError(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"token_type": string(jwt.TokenRefresh),
			}
		})
		return nil, mapped
	}

	identity, err := e.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if enabledErr := AccountEnabled(identity); enabledErr != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, claims.Subject, enabledErr, nil)
		return nil, enabledErr
	}

	accessToken, err := e.jwtManager.Issue(jwt.IssueParams{
		Type:        jwt.TokenAccess,
		Subject:     identity.Email,
		UserID:      identity.ID,
		Role:        string(identity.Role),
		Authorities: AuthoritiesFor(identity),
		MFAVerified: claims.MFAVerified,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if err := e.activity.Seed(ctx, accessToken); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, identity.ID, identity.Email, nil, nil)
	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       identity.ID,
		Email:        identity.Email,
		Role:         identity.Role,
		Authorities:  AuthoritiesFor(identity),
	}, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Logout removes the access token's activity entry. The token's signature
// stays valid until its expiry, but [Engine.Validate] rejects it from this
// point on. Logging out an already expired token succeeds.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.jwtManager == nil || e.activity == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(accessToken, jwt.TokenAccess)
	if err != nil && !errors.Is(err, jwt.ErrExpired) {
		mapped := mapParseError(err)
		e.emitAudit(ctx, auditEventTokenRejected, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"operation": "logout",
			}
		})
		return mapped
	}

	if err := e.activity.Revoke(ctx, accessToken); err != nil {
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	userID, email := "", ""
	if claims != nil {
		userID, email = claims.UserID, claims.Subject
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, email, nil, nil)
	return nil
}

// AccountLocked describes the accountlocked operation and its observable behavior.
//
// AccountLocked may return an error when input validation, dependency calls, or security checks fail.
// AccountLocked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AccountLocked(ctx context.Context, email string) (bool, error) {
	if e == nil || e.attempts == nil {
		return false, ErrEngineNotReady
	}
	locked, err := e.attempts.IsLocked(ctx, email)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	return locked, nil
}

// UnlockAccount describes the unlockaccount operation and its observable behavior.
//
// UnlockAccount may return an error when input validation, dependency calls, or security checks fail.
// UnlockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Unlocking discards the failure tally that feeds the lockout decision. The
// attempt history itself is preserved.
func (e *Engine) UnlockAccount(ctx context.Context, email string) error {
	if e == nil || e.attempts == nil {
		return ErrEngineNotReady
	}
	if err := e.attempts.Clear(ctx, email); err != nil {
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	e.emitAudit(ctx, auditEventAccountUnlocked, true, "", email, nil, nil)
	return nil
}

// LoginAttempts describes the loginattempts operation and its observable behavior.
//
// LoginAttempts may return an error when input validation, dependency calls, or security checks fail.
// LoginAttempts does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LoginAttempts(ctx context.Context, email string, limit int) ([]LoginAttemptRecord, error) {
	if e == nil || e.attempts == nil {
		return nil, ErrEngineNotReady
	}
	records, err := e.attempts.Recent(ctx, email, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	return records, nil
}
