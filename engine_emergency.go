package medauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sentinelmed/medauth/jwt"
)

// EmergencyAccess describes the emergencyaccess operation and its observable behavior.
//
// EmergencyAccess may return an error when input validation, dependency calls, or security checks fail.
// EmergencyAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The break-glass path: a doctor proves a verified license and the patient's
// national-identity OTP, and receives a limited, short-lived grant without
// patient consent. The issued token carries exactly the ROLE_DOCTOR and
// EMERGENCY_ACCESS_ONLY authorities, so it opens nothing beyond the granted
// patient no matter what the doctor's regular session could reach.
func (e *Engine) EmergencyAccess(ctx context.Context, req EmergencyAccessRequest) (*EmergencyAccessResult, error) {
	if e == nil || e.users == nil || e.grants == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.verifier == nil {
		return nil, ErrEngineNotReady
	}

	doctor, err := e.users.FindByLicenseNumber(ctx, req.LicenseNumber)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricEmergencyDenied)
			e.emitAudit(ctx, auditEventEmergencyDenied, false, "", "", ErrLicenseInvalid, func() map[string]string {
				return map[string]string{
					"patient_id":  req.PatientID,
					"national_id": maskNationalID(req.NationalID),
				}
			})
			return nil, ErrLicenseInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if doctor.Role != RoleDoctor || doctor.Doctor == nil ||
		doctor.Doctor.VerificationStatus != VerificationVerified {
		e.metricInc(MetricEmergencyDenied)
		e.emitAudit(ctx, auditEventEmergencyDenied, false, doctor.ID, doctor.Email, ErrLicenseInvalid, func() map[string]string {
			return map[string]string{
				"patient_id":  req.PatientID,
				"national_id": maskNationalID(req.NationalID),
			}
		})
		return nil, ErrLicenseInvalid
	}
	if !doctor.Doctor.LicenseExpiry.IsZero() && e.now().After(doctor.Doctor.LicenseExpiry) {
		e.metricInc(MetricEmergencyDenied)
		e.emitAudit(ctx, auditEventEmergencyDenied, false, doctor.ID, doctor.Email, ErrLicenseExpired, func() map[string]string {
			return map[string]string{
				"patient_id":  req.PatientID,
				"national_id": maskNationalID(req.NationalID),
			}
		})
		return nil, ErrLicenseExpired
	}

	verifyCtx, cancel := e.verifyDeadline(ctx)
	verified, err := e.verifier.VerifyOTP(verifyCtx, req.NationalID, req.OTP)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if !verified {
		e.metricInc(MetricEmergencyDenied)
		e.emitAudit(ctx, auditEventEmergencyDenied, false, doctor.ID, doctor.Email, ErrOTPInvalid, func() map[string]string {
			return map[string]string{
				"patient_id":  req.PatientID,
				"national_id": maskNationalID(req.NationalID),
			}
		})
		return nil, ErrOTPInvalid
	}

	now := e.now()
	record := &accessRequestRecord{
		AccessRequest: AccessRequest{
			ID:        uuid.NewString(),
			DoctorID:  doctor.ID,
			PatientID: req.PatientID,
			Status:    RequestApproved,
			Type:      AccessEmergency,
			Reason:    req.Reason,
			CreatedAt: now,
			GrantedAt: now,
			ExpiresAt: now.Add(e.config.Access.EmergencyGrantTTL),
		},
	}
	permission := &AccessPermission{
		ID:         uuid.NewString(),
		PatientID:  req.PatientID,
		DoctorID:   doctor.ID,
		Level:      PermissionLimited,
		ValidFrom:  now,
		ValidUntil: now.Add(e.config.Access.EmergencyGrantTTL),
		CreatedAt:  now,
	}
	if err := e.grants.CreateRequest(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if err := e.grants.PushPermission(ctx, permission); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	accessToken, err := e.jwtManager.Issue(jwt.IssueParams{
		Type:        jwt.TokenAccess,
		Subject:     doctor.Email,
		UserID:      doctor.ID,
		Role:        string(doctor.Role),
		Authorities: EmergencyAuthorities(),
		MFAVerified: false,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	if err := e.activity.Seed(ctx, accessToken); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}

	e.metricInc(MetricEmergencyGranted)
	e.emitAudit(ctx, auditEventEmergencyGranted, true, doctor.ID, doctor.Email, nil, func() map[string]string {
		return map[string]string{
			"request_id":  record.ID,
			"patient_id":  req.PatientID,
			"national_id": maskNationalID(req.NationalID),
			"reason":      req.Reason,
		}
	})
	return &EmergencyAccessResult{
		AccessToken: accessToken,
		RequestID:   record.ID,
		Permission:  *permission,
	}, nil
}
