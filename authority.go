package medauth

// Authority names carried in token claims and checked by downstream
// services. The set for an identity is derived, never stored.
const (
	AuthorityRolePatient = "ROLE_PATIENT"
	AuthorityRoleDoctor  = "ROLE_DOCTOR"
	AuthorityRoleAdmin   = "ROLE_ADMIN"

	AuthorityViewOwnRecords    = "VIEW_OWN_RECORDS"
	AuthorityManagePermissions = "MANAGE_PERMISSIONS"
	AuthorityGrantAccess       = "GRANT_ACCESS"

	AuthorityRequestAccess      = "REQUEST_ACCESS"
	AuthorityViewPatientRecords = "VIEW_PATIENT_RECORDS"
	AuthorityAddClinicalNotes   = "ADD_CLINICAL_NOTES"
	AuthorityEmergencyAccess    = "EMERGENCY_ACCESS"

	AuthorityManageUsers   = "MANAGE_USERS"
	AuthorityViewAuditLogs = "VIEW_AUDIT_LOGS"
	AuthorityVerifyDoctors = "VERIFY_DOCTORS"
	AuthoritySystemConfig  = "SYSTEM_CONFIG"

	// AuthorityEmergencyAccessOnly marks tokens minted through the
	// emergency override path. Such tokens carry exactly
	// {ROLE_DOCTOR, EMERGENCY_ACCESS_ONLY}.
	AuthorityEmergencyAccessOnly = "EMERGENCY_ACCESS_ONLY"
)

// AuthoritiesFor derives the authority set for an identity. Doctors gain
// clinical authorities only while their license is VERIFIED; a doctor in any
// other review state keeps the role authority and the ability to trigger the
// emergency path, nothing clinical.
func AuthoritiesFor(identity *Identity) []string {
	if identity == nil {
		return nil
	}

	switch identity.Role {
	case RolePatient:
		return []string{
			AuthorityRolePatient,
			AuthorityViewOwnRecords,
			AuthorityManagePermissions,
			AuthorityGrantAccess,
		}
	case RoleDoctor:
		authorities := []string{
			AuthorityRoleDoctor,
			AuthorityEmergencyAccess,
		}
		if identity.Doctor != nil && identity.Doctor.VerificationStatus == VerificationVerified {
			authorities = append(authorities,
				AuthorityRequestAccess,
				AuthorityViewPatientRecords,
				AuthorityAddClinicalNotes,
			)
		}
		return authorities
	case RoleAdmin:
		return []string{
			AuthorityRoleAdmin,
			AuthorityManageUsers,
			AuthorityViewAuditLogs,
			AuthorityVerifyDoctors,
			AuthoritySystemConfig,
		}
	default:
		return nil
	}
}

// EmergencyAuthorities is the exact authority set of an emergency-override
// access token.
func EmergencyAuthorities() []string {
	return []string{AuthorityRoleDoctor, AuthorityEmergencyAccessOnly}
}

// AccountEnabled decides whether an identity may hold a session right now.
// Lockout is not part of this decision: it is derived from the attempt
// ledger at login time.
func AccountEnabled(identity *Identity) error {
	if identity == nil {
		return ErrUserNotFound
	}
	if !identity.Active {
		return ErrAccountDisabled
	}
	if identity.Role == RoleDoctor && identity.Doctor != nil {
		if identity.Doctor.VerificationStatus == VerificationRejected {
			return ErrAccountDisabled
		}
	}
	return nil
}

// RequiresMFA reports whether a login for this identity must complete a
// second factor before clinical tokens are issued.
func RequiresMFA(identity *Identity) bool {
	return identity != nil && identity.MFAEnabled
}
