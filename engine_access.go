package medauth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/sentinelmed/medauth/internal"
)

// RequestAccess describes the requestaccess operation and its observable behavior.
//
// RequestAccess may return an error when input validation, dependency calls, or security checks fail.
// RequestAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The returned ticket carries the consent code the patient must present to
// [Engine.ApproveAccess]. The code is never written to the audit trail;
// delivering it to the patient is the caller's responsibility.
func (e *Engine) RequestAccess(ctx context.Context, doctorID, patientID, reason string) (*AccessRequestTicket, error) {
	if e == nil || e.grants == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	doctor, err := e.users.FindByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if doctor.Role != RoleDoctor || doctor.Doctor == nil ||
		doctor.Doctor.VerificationStatus != VerificationVerified {
		e.emitAudit(ctx, auditEventAccessDenied, false, doctorID, doctor.Email, ErrDoctorNotVerified, func() map[string]string {
			return map[string]string{
				"patient_id": patientID,
			}
		})
		return nil, ErrDoctorNotVerified
	}

	otp, err := internal.NewOTP(e.config.Access.ConsentOTPDigits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	now := e.now()
	record := &accessRequestRecord{
		AccessRequest: AccessRequest{
			ID:        uuid.NewString(),
			DoctorID:  doctorID,
			PatientID: patientID,
			Status:    RequestPending,
			Type:      AccessOTPConsent,
			Reason:    reason,
			CreatedAt: now,
		},
		OTPCode:   otp,
		OTPExpiry: now.Add(e.config.Access.ConsentOTPTTL),
	}
	if err := e.grants.CreateRequest(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	e.metricInc(MetricAccessRequested)
	e.emitAudit(ctx, auditEventAccessRequested, true, doctorID, doctor.Email, nil, func() map[string]string {
		return map[string]string{
			"request_id": record.ID,
			"patient_id": patientID,
		}
	})
	return &AccessRequestTicket{
		RequestID: record.ID,
		OTP:       otp,
		ExpiresAt: record.OTPExpiry,
	}, nil
}

// ApproveAccess describes the approveaccess operation and its observable behavior.
//
// ApproveAccess may return an error when input validation, dependency calls, or security checks fail.
// ApproveAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A wrong or expired consent code leaves the request PENDING; only a
// matching code within its TTL transitions it to APPROVED and opens a
// FULL_ACCESS grant. Concurrent approvals of the same request settle to a
// single winner.
func (e *Engine) ApproveAccess(ctx context.Context, requestID, patientID, otp string) (*AccessPermission, error) {
	if e == nil || e.grants == nil {
		return nil, ErrEngineNotReady
	}

	now := e.now()
	permission := &AccessPermission{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		Level:      PermissionFull,
		ValidFrom:  now,
		ValidUntil: now.Add(e.config.Access.GrantTTL),
		CreatedAt:  now,
	}

	record, err := e.grants.ApproveRequest(ctx, requestID, patientID, otp, permission, now)
	if err != nil {
		mapped := mapGrantError(err)
		e.emitAudit(ctx, auditEventAccessRejected, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"request_id": requestID,
				"patient_id": patientID,
			}
		})
		return nil, mapped
	}

	e.metricInc(MetricAccessApproved)
	e.emitAudit(ctx, auditEventAccessApproved, true, record.DoctorID, "", nil, func() map[string]string {
		return map[string]string{
			"request_id":    requestID,
			"patient_id":    patientID,
			"permission_id": permission.ID,
		}
	})
	return permission, nil
}

// DenyAccess describes the denyaccess operation and its observable behavior.
//
// DenyAccess may return an error when input validation, dependency calls, or security checks fail.
// DenyAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DenyAccess(ctx context.Context, requestID, patientID string) error {
	if e == nil || e.grants == nil {
		return ErrEngineNotReady
	}

	if err := e.grants.DenyRequest(ctx, requestID, patientID, e.now()); err != nil {
		mapped := mapGrantError(err)
		e.emitAudit(ctx, auditEventAccessRejected, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"request_id": requestID,
				"patient_id": patientID,
			}
		})
		return mapped
	}

	e.metricInc(MetricAccessDenied)
	e.emitAudit(ctx, auditEventAccessDenied, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"request_id": requestID,
			"patient_id": patientID,
		}
	})
	return nil
}

// RevokeAccess describes the revokeaccess operation and its observable behavior.
//
// RevokeAccess may return an error when input validation, dependency calls, or security checks fail.
// RevokeAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Revocation is one-way and idempotent: revoking a pair with no live grant
// is a no-op.
func (e *Engine) RevokeAccess(ctx context.Context, patientID, doctorID string) error {
	if e == nil || e.grants == nil {
		return ErrEngineNotReady
	}

	changed, err := e.grants.RevokeHead(ctx, patientID, doctorID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if changed {
		e.metricInc(MetricAccessRevoked)
		e.emitAudit(ctx, auditEventAccessRevoked, true, doctorID, "", nil, func() map[string]string {
			return map[string]string{
				"patient_id": patientID,
			}
		})
	}
	return nil
}

// CheckAccess describes the checkaccess operation and its observable behavior.
//
// CheckAccess may return an error when input validation, dependency calls, or security checks fail.
// CheckAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Only the newest grant for the pair counts. A revoked or lapsed newest
// grant yields [PermissionNone] even when an older, still-dated grant sits
// beneath it.
func (e *Engine) CheckAccess(ctx context.Context, doctorID, patientID string) (PermissionLevel, error) {
	if e == nil || e.grants == nil {
		return PermissionNone, ErrEngineNotReady
	}

	head, err := e.grants.HeadPermission(ctx, patientID, doctorID)
	if err != nil {
		return PermissionNone, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if head == nil || !e.permissionLive(head) {
		e.metricInc(MetricAccessCheckDenied)
		return PermissionNone, nil
	}
	e.metricInc(MetricAccessCheckAllowed)
	return head.Level, nil
}

// ValidateRecordAccess describes the validaterecordaccess operation and its observable behavior.
//
// ValidateRecordAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateRecordAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Downstream record reads revalidate here: patients may read only their own
// records, doctors need a live grant for the patient, and admin tokens carry
// no clinical authority at all.
func (e *Engine) ValidateRecordAccess(ctx context.Context, accessToken, patientID string) (*AuthResult, error) {
	result, err := e.Validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	switch {
	case slices.Contains(result.Authorities, AuthorityViewOwnRecords):
		if result.UserID != patientID {
			e.metricInc(MetricAccessCheckDenied)
			e.emitAudit(ctx, auditEventAccessRejected, false, result.UserID, result.Email, ErrAccessDenied, func() map[string]string {
				return map[string]string{
					"patient_id": patientID,
				}
			})
			return nil, ErrAccessDenied
		}
		return result, nil
	case slices.Contains(result.Authorities, AuthorityViewPatientRecords),
		slices.Contains(result.Authorities, AuthorityEmergencyAccessOnly):
		level, err := e.CheckAccess(ctx, result.UserID, patientID)
		if err != nil {
			return nil, err
		}
		if level == PermissionNone {
			e.emitAudit(ctx, auditEventAccessRejected, false, result.UserID, result.Email, ErrAccessDenied, func() map[string]string {
				return map[string]string{
					"patient_id": patientID,
				}
			})
			return nil, ErrAccessDenied
		}
		return result, nil
	default:
		e.metricInc(MetricAccessCheckDenied)
		e.emitAudit(ctx, auditEventAccessRejected, false, result.UserID, result.Email, ErrAccessDenied, func() map[string]string {
			return map[string]string{
				"patient_id": patientID,
			}
		})
		return nil, ErrAccessDenied
	}
}

// AccessRequestsForDoctor describes the accessrequestsfordoctor operation and its observable behavior.
//
// AccessRequestsForDoctor may return an error when input validation, dependency calls, or security checks fail.
// AccessRequestsForDoctor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AccessRequestsForDoctor(ctx context.Context, doctorID string) ([]AccessRequest, error) {
	if e == nil || e.grants == nil {
		return nil, ErrEngineNotReady
	}
	records, err := e.grants.RequestsForDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	return e.publicRequests(records), nil
}

// AccessRequestsForPatient describes the accessrequestsforpatient operation and its observable behavior.
//
// AccessRequestsForPatient may return an error when input validation, dependency calls, or security checks fail.
// AccessRequestsForPatient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AccessRequestsForPatient(ctx context.Context, patientID string) ([]AccessRequest, error) {
	if e == nil || e.grants == nil {
		return nil, ErrEngineNotReady
	}
	records, err := e.grants.RequestsForPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	return e.publicRequests(records), nil
}

// GrantsForPatient describes the grantsforpatient operation and its observable behavior.
//
// GrantsForPatient may return an error when input validation, dependency calls, or security checks fail.
// GrantsForPatient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GrantsForPatient(ctx context.Context, patientID string) ([]AccessPermission, error) {
	if e == nil || e.grants == nil {
		return nil, ErrEngineNotReady
	}
	grants, err := e.grants.GrantsForPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	return grants, nil
}

// publicRequests strips stored secrets and applies read-time expiry: a
// PENDING request past its consent window and an APPROVED request past its
// grant window both read as EXPIRED without a write.
func (e *Engine) publicRequests(records []*accessRequestRecord) []AccessRequest {
	now := e.now()
	out := make([]AccessRequest, 0, len(records))
	for _, record := range records {
		request := record.AccessRequest
		switch {
		case request.Status == RequestPending && !record.OTPExpiry.IsZero() && now.After(record.OTPExpiry):
			request.Status = RequestExpired
		case request.Status == RequestApproved && !request.ExpiresAt.IsZero() && now.After(request.ExpiresAt):
			request.Status = RequestExpired
		}
		out = append(out, request)
	}
	return out
}

// permissionLive applies the grant window with both ends inclusive:
// validFrom <= now <= validUntil.
func (e *Engine) permissionLive(permission *AccessPermission) bool {
	if permission.Revoked {
		return false
	}
	now := e.now()
	if now.Before(permission.ValidFrom) {
		return false
	}
	return !now.After(permission.ValidUntil)
}

func mapGrantError(err error) error {
	switch {
	case errors.Is(err, errGrantRequestNotFound):
		return ErrRequestNotFound
	case errors.Is(err, errGrantNotPending):
		return ErrRequestNotPending
	case errors.Is(err, errGrantWrongPatient):
		return ErrAccessDenied
	case errors.Is(err, errGrantOTPMismatch):
		return ErrOTPInvalid
	case errors.Is(err, errGrantOTPExpired):
		return ErrOTPExpired
	default:
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
}
