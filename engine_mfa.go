package medauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sentinelmed/medauth/jwt"
)

// VerifyMFA describes the verifymfa operation and its observable behavior.
//
// VerifyMFA may return an error when input validation, dependency calls, or security checks fail.
// VerifyMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The temporary token from [Engine.Login] is exchanged together with the
// challenge code for a full session pair. A matching code is consumed
// atomically; a wrong code leaves the challenge in place for another try
// until its TTL lapses.
func (e *Engine) VerifyMFA(ctx context.Context, tempToken, code string) (*LoginResult, error) {
	if e == nil || e.jwtManager == nil || e.mfaStore == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tempToken, jwt.TokenTemp)
	if err != nil {
		mapped := mapParseError(err)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"token_type": string(jwt.TokenTemp),
			}
		})
		return nil, mapped
	}

	if err := e.mfaStore.Verify(ctx, claims.UserID, code); err != nil {
		switch {
		case errors.Is(err, errMFAChallengeMismatch):
			e.metricInc(MetricMFAFailure)
			e.emitAudit(ctx, auditEventMFAFailure, false, claims.UserID, claims.Subject, ErrMFACodeInvalid, nil)
			return nil, ErrMFACodeInvalid
		case errors.Is(err, errMFAChallengeNotFound):
			e.metricInc(MetricMFAFailure)
			e.emitAudit(ctx, auditEventMFAFailure, false, claims.UserID, claims.Subject, ErrMFACodeExpired, nil)
			return nil, ErrMFACodeExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	identity, err := e.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if enabledErr := AccountEnabled(identity); enabledErr != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, identity.ID, identity.Email, enabledErr, nil)
		return nil, enabledErr
	}

	accessToken, refreshToken, err := e.issueSessionTokens(ctx, identity, true)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, identity.ID, identity.Email, nil, nil)
	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       identity.ID,
		Email:        identity.Email,
		Role:         identity.Role,
		Authorities:  AuthoritiesFor(identity),
	}, nil
}

// RequestMFACode describes the requestmfacode operation and its observable behavior.
//
// RequestMFACode may return an error when input validation, dependency calls, or security checks fail.
// RequestMFACode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Reissuing replaces any outstanding challenge for the identity, so at most
// one code is live per account at a time.
func (e *Engine) RequestMFACode(ctx context.Context, tempToken string) error {
	if e == nil || e.jwtManager == nil || e.mfaStore == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tempToken, jwt.TokenTemp)
	if err != nil {
		return mapParseError(err)
	}

	if _, err := e.mfaStore.Issue(ctx, claims.UserID); err != nil {
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	e.emitAudit(ctx, auditEventMFAChallengeIssued, true, claims.UserID, claims.Subject, nil, nil)
	return nil
}
