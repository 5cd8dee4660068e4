package medauth

import (
	"context"
	"time"
)

// Role identifies the kind of account an [Identity] represents.
//
// Role instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Role string

const (
	// RolePatient is an exported constant or variable used by the authentication engine.
	RolePatient Role = "PATIENT"
	// RoleDoctor is an exported constant or variable used by the authentication engine.
	RoleDoctor Role = "DOCTOR"
	// RoleAdmin is an exported constant or variable used by the authentication engine.
	RoleAdmin Role = "ADMIN"
)

// VerificationStatus is the license review state of a doctor profile.
//
// VerificationStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VerificationStatus string

const (
	// VerificationPending is an exported constant or variable used by the authentication engine.
	VerificationPending VerificationStatus = "PENDING"
	// VerificationUnderReview is an exported constant or variable used by the authentication engine.
	VerificationUnderReview VerificationStatus = "UNDER_REVIEW"
	// VerificationVerified is an exported constant or variable used by the authentication engine.
	VerificationVerified VerificationStatus = "VERIFIED"
	// VerificationRejected is an exported constant or variable used by the authentication engine.
	VerificationRejected VerificationStatus = "REJECTED"
	// VerificationSuspended is an exported constant or variable used by the authentication engine.
	VerificationSuspended VerificationStatus = "SUSPENDED"
	// VerificationExpired is an exported constant or variable used by the authentication engine.
	VerificationExpired VerificationStatus = "EXPIRED"
	// VerificationRevoked is an exported constant or variable used by the authentication engine.
	VerificationRevoked VerificationStatus = "REVOKED"
	// VerificationResubmissionRequired is an exported constant or variable used by the authentication engine.
	VerificationResubmissionRequired VerificationStatus = "RESUBMISSION_REQUIRED"
)

// DoctorProfile carries the clinician-specific extension of an [Identity].
// Only identities with [RoleDoctor] have one.
type DoctorProfile struct {
	LicenseNumber      string
	LicenseExpiry      time.Time
	VerificationStatus VerificationStatus
}

// Identity is the account record returned by [UserStore]. The engine treats
// it as read-only; all mutation happens in the caller's own persistence.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	MFAEnabled   bool
	Active       bool
	CreatedAt    time.Time

	// Doctor is nil for every role except RoleDoctor.
	Doctor *DoctorProfile
}

// UserStore is the interface callers must implement to integrate medauth
// with their identity database. Lookups that find nothing return
// [ErrUserNotFound]; any other error is treated as infrastructure failure.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByLicenseNumber(ctx context.Context, licenseNumber string) (*Identity, error)
}

// IdentityVerifier checks a one-time code issued against a national identity
// number (e.g. a government eKYC provider). Implementations must be safe for
// concurrent use; the engine bounds each call with a deadline.
type IdentityVerifier interface {
	VerifyOTP(ctx context.Context, nationalID, otp string) (bool, error)
}

// AttemptOutcome classifies a recorded login attempt.
type AttemptOutcome string

const (
	// AttemptSuccess is an exported constant or variable used by the authentication engine.
	AttemptSuccess AttemptOutcome = "SUCCESS"
	// AttemptFailed is an exported constant or variable used by the authentication engine.
	AttemptFailed AttemptOutcome = "FAILED"
)

// LoginAttemptRecord is a single append-only entry in the attempt ledger.
type LoginAttemptRecord struct {
	ID      string         `json:"id"`
	Email   string         `json:"email"`
	IP      string         `json:"ip,omitempty"`
	Outcome AttemptOutcome `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	At      time.Time      `json:"at"`
}

// LoginResult is returned by [Engine.Login], [Engine.VerifyMFA], and
// [Engine.Refresh]. When MFARequired is set, AccessToken and RefreshToken are
// empty and TempToken must be exchanged via [Engine.VerifyMFA].
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	MFARequired bool
	TempToken   string

	UserID      string
	Email       string
	Role        Role
	Authorities []string
}

// AuthResult is returned by [Engine.Validate] and
// [Engine.ValidateRecordAccess].
type AuthResult struct {
	UserID      string
	Email       string
	Role        Role
	Authorities []string
	MFAVerified bool
}

// RequestStatus is the lifecycle state of an [AccessRequest].
type RequestStatus string

const (
	// RequestPending is an exported constant or variable used by the authentication engine.
	RequestPending RequestStatus = "PENDING"
	// RequestApproved is an exported constant or variable used by the authentication engine.
	RequestApproved RequestStatus = "APPROVED"
	// RequestDenied is an exported constant or variable used by the authentication engine.
	RequestDenied RequestStatus = "DENIED"
	// RequestExpired is an exported constant or variable used by the authentication engine.
	RequestExpired RequestStatus = "EXPIRED"
)

// AccessType distinguishes how an [AccessRequest] was raised.
type AccessType string

const (
	// AccessOTPConsent is an exported constant or variable used by the authentication engine.
	AccessOTPConsent AccessType = "OTP_CONSENT"
	// AccessEmergency is an exported constant or variable used by the authentication engine.
	AccessEmergency AccessType = "EMERGENCY_ACCESS"
)

// PermissionLevel is the effective access a doctor holds over a patient's
// records at a point in time.
type PermissionLevel string

const (
	// PermissionNone is an exported constant or variable used by the authentication engine.
	PermissionNone PermissionLevel = "NO_ACCESS"
	// PermissionLimited is an exported constant or variable used by the authentication engine.
	PermissionLimited PermissionLevel = "LIMITED_ACCESS"
	// PermissionFull is an exported constant or variable used by the authentication engine.
	PermissionFull PermissionLevel = "FULL_ACCESS"
)

// AccessRequest is a doctor's request to read a patient's records. Expiry is
// applied at read time: a stale APPROVED or PENDING request reads back as
// EXPIRED without a background sweeper.
type AccessRequest struct {
	ID        string        `json:"id"`
	DoctorID  string        `json:"doctor_id"`
	PatientID string        `json:"patient_id"`
	Status    RequestStatus `json:"status"`
	Type      AccessType    `json:"type"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	GrantedAt time.Time     `json:"granted_at,omitzero"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`
}

// AccessRequestTicket is returned by [Engine.RequestAccess]. The OTP is
// handed to the caller for out-of-band delivery to the patient; the engine
// never transmits it.
type AccessRequestTicket struct {
	RequestID string
	OTP       string
	ExpiresAt time.Time
}

// AccessPermission is a granted (possibly since revoked) permission row for
// a (patient, doctor) pair. Revocation is one-way: a revoked permission never
// becomes valid again, only a fresh grant restores access.
type AccessPermission struct {
	ID         string          `json:"id"`
	PatientID  string          `json:"patient_id"`
	DoctorID   string          `json:"doctor_id"`
	Level      PermissionLevel `json:"level"`
	ValidFrom  time.Time       `json:"valid_from"`
	ValidUntil time.Time       `json:"valid_until"`
	Revoked    bool            `json:"revoked"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EmergencyAccessRequest is the input for [Engine.EmergencyAccess].
type EmergencyAccessRequest struct {
	LicenseNumber string
	PatientID     string
	NationalID    string
	OTP           string
	Reason        string
}

// EmergencyAccessResult is returned by [Engine.EmergencyAccess]. The access
// token carries exactly the emergency authority pair and nothing else.
type EmergencyAccessResult struct {
	AccessToken string
	RequestID   string
	Permission  AccessPermission
}
