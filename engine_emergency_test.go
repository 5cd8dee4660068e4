package medauth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func emergencyFixture(t *testing.T, verifier *stubVerifier) (*Engine, *testClock, func()) {
	t.Helper()

	cfg := testConfig()
	store := newMemoryUserStore()
	seedPatient(t, store, cfg, "patient-1", "priya@example.com", "correct-horse-123")
	seedDoctor(t, store, cfg, "doctor-1", "dr.rao@example.com", "MH-2031-7744", "correct-horse-123", VerificationVerified)
	seedDoctor(t, store, cfg, "doctor-2", "dr.iyer@example.com", "KA-1999-0021", "correct-horse-123", VerificationPending)

	var iv IdentityVerifier
	if verifier != nil {
		iv = verifier
	}
	engine, _, clock, done := newAuthEngine(t, cfg, store, iv)
	return engine, clock, done
}

func TestEmergencyAccessGrantsLimitedScope(t *testing.T) {
	verifier := &stubVerifier{ok: true}
	engine, _, done := emergencyFixture(t, verifier)
	defer done()

	result, err := engine.EmergencyAccess(context.Background(), EmergencyAccessRequest{
		LicenseNumber: "MH-2031-7744",
		PatientID:     "patient-1",
		NationalID:    "448812349876",
		OTP:           "654321",
		Reason:        "unconscious patient in ER",
	})
	if err != nil {
		t.Fatalf("EmergencyAccess failed: %v", err)
	}
	if result.AccessToken == "" || result.RequestID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Permission.Level != PermissionLimited {
		t.Fatalf("expected LIMITED_ACCESS, got %s", result.Permission.Level)
	}
	if verifier.lastNatID != "448812349876" || !verifier.sawContext {
		t.Fatal("expected identity verifier to run with a deadline-bound context")
	}

	auth, err := engine.Validate(context.Background(), result.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	want := []string{AuthorityRoleDoctor, AuthorityEmergencyAccessOnly}
	if !slices.Equal(auth.Authorities, want) {
		t.Fatalf("expected authorities %v, got %v", want, auth.Authorities)
	}

	// The token is honored only against the granted patient.
	if _, err := engine.ValidateRecordAccess(context.Background(), result.AccessToken, "patient-1"); err != nil {
		t.Fatalf("emergency record access failed: %v", err)
	}
	if _, err := engine.ValidateRecordAccess(context.Background(), result.AccessToken, "patient-2"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for an ungranted patient, got %v", err)
	}

	level, err := engine.CheckAccess(context.Background(), "doctor-1", "patient-1")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if level != PermissionLimited {
		t.Fatalf("expected LIMITED_ACCESS grant, got %s", level)
	}

	requests, err := engine.AccessRequestsForPatient(context.Background(), "patient-1")
	if err != nil {
		t.Fatalf("AccessRequestsForPatient failed: %v", err)
	}
	if len(requests) != 1 || requests[0].Type != AccessEmergency || requests[0].Status != RequestApproved {
		t.Fatalf("expected an APPROVED EMERGENCY_ACCESS request, got %+v", requests)
	}
}

func TestEmergencyAccessUnknownLicense(t *testing.T) {
	engine, _, done := emergencyFixture(t, &stubVerifier{ok: true})
	defer done()

	_, err := engine.EmergencyAccess(context.Background(), EmergencyAccessRequest{
		LicenseNumber: "XX-0000-0000",
		PatientID:     "patient-1",
		NationalID:    "448812349876",
		OTP:           "654321",
	})
	if !errors.Is(err, ErrLicenseInvalid) {
		t.Fatalf("expected ErrLicenseInvalid, got %v", err)
	}
}

func TestEmergencyAccessUnverifiedDoctor(t *testing.T) {
	verifier := &stubVerifier{ok: true}
	engine, _, done := emergencyFixture(t, verifier)
	defer done()

	_, err := engine.EmergencyAccess(context.Background(), EmergencyAccessRequest{
		LicenseNumber: "KA-1999-0021",
		PatientID:     "patient-1",
		NationalID:    "448812349876",
		OTP:           "654321",
	})
	if !errors.Is(err, ErrLicenseInvalid) {
		t.Fatalf("expected ErrLicenseInvalid, got %v", err)
	}
	if verifier.callCount != 0 {
		t.Fatal("expected no identity verification for an unverified license")
	}
}

func TestEmergencyAccessBadIdentityOTP(t *testing.T) {
	engine, _, done := emergencyFixture(t, &stubVerifier{ok: false})
	defer done()

	_, err := engine.EmergencyAccess(context.Background(), EmergencyAccessRequest{
		LicenseNumber: "MH-2031-7744",
		PatientID:     "patient-1",
		NationalID:    "448812349876",
		OTP:           "000000",
	})
	if !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}

	level, err := engine.CheckAccess(context.Background(), "doctor-1", "patient-1")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if level != PermissionNone {
		t.Fatalf("expected no grant after failed verification, got %s", level)
	}
}

func TestEmergencyAccessVerifierFailure(t *testing.T) {
	engine, _, done := emergencyFixture(t, &stubVerifier{err: errors.New("ekyc unreachable")})
	defer done()

	_, err := engine.EmergencyAccess(context.Background(), EmergencyAccessRequest{
		LicenseNumber: "MH-2031-7744",
		PatientID:     "patient-1",
		NationalID:    "448812349876",
		OTP:           "654321",
	})
	if !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("expected ErrInfrastructure, got %v", err)
	}
}

func TestEmergencyAccessWithoutVerifier(t *testing.T) {
	engine, _, done := emergencyFixture(t, nil)
	defer done()

	_, err := engine.EmergencyAccess(context.Background(), EmergencyAccessRequest{
		LicenseNumber: "MH-2031-7744",
		PatientID:     "patient-1",
		NationalID:    "448812349876",
		OTP:           "654321",
	})
	if !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestEmergencyGrantExpires(t *testing.T) {
	engine, clock, done := emergencyFixture(t, &stubVerifier{ok: true})
	defer done()

	if _, err := engine.EmergencyAccess(context.Background(), EmergencyAccessRequest{
		LicenseNumber: "MH-2031-7744",
		PatientID:     "patient-1",
		NationalID:    "448812349876",
		OTP:           "654321",
	}); err != nil {
		t.Fatalf("EmergencyAccess failed: %v", err)
	}

	clock.Advance(2 * time.Hour)

	level, err := engine.CheckAccess(context.Background(), "doctor-1", "patient-1")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if level != PermissionNone {
		t.Fatalf("expected emergency grant to lapse, got %s", level)
	}
}
