package medauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedMFAPatient(t *testing.T, store *memoryUserStore, cfg Config) *Identity {
	t.Helper()

	identity := seedPatient(t, store, cfg, "patient-1", "priya@example.com", "correct-horse-123")
	identity.MFAEnabled = true
	return identity
}

func TestLoginWithMFAIssuesChallenge(t *testing.T) {
	cfg := testConfig()
	store := newMemoryUserStore()
	seedMFAPatient(t, store, cfg)

	engine, mr, _, done := newAuthEngine(t, cfg, store, nil)
	defer done()

	result, err := engine.Login(context.Background(), "priya@example.com", "correct-horse-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.MFARequired || result.TempToken == "" {
		t.Fatalf("expected MFA challenge, got %+v", result)
	}
	if result.AccessToken != "" || result.RefreshToken != "" {
		t.Fatal("expected no session tokens before MFA confirmation")
	}
	if !mr.Exists("mfc:patient-1") {
		t.Fatal("expected MFA challenge key to exist")
	}
}

func TestVerifyMFASuccessConsumesChallenge(t *testing.T) {
	cfg := testConfig()
	store := newMemoryUserStore()
	seedMFAPatient(t, store, cfg)

	engine, mr, _, done := newAuthEngine(t, cfg, store, nil)
	defer done()

	login, err := engine.Login(context.Background(), "priya@example.com", "correct-horse-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code, err := mr.Get("mfc:patient-1")
	if err != nil {
		t.Fatalf("reading challenge: %v", err)
	}

	result, err := engine.VerifyMFA(context.Background(), login.TempToken, code)
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected session tokens after MFA confirmation")
	}
	if mr.Exists("mfc:patient-1") {
		t.Fatal("expected challenge to be consumed")
	}

	auth, err := engine.Validate(context.Background(), result.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !auth.MFAVerified {
		t.Fatal("expected mfa_verified claim on issued access token")
	}

	// A consumed code cannot be replayed.
	if _, err := engine.VerifyMFA(context.Background(), login.TempToken, code); !errors.Is(err, ErrMFACodeExpired) {
		t.Fatalf("expected ErrMFACodeExpired on replay, got %v", err)
	}
}

func TestVerifyMFAWrongCodeLeavesChallenge(t *testing.T) {
	cfg := testConfig()
	store := newMemoryUserStore()
	seedMFAPatient(t, store, cfg)

	engine, mr, _, done := newAuthEngine(t, cfg, store, nil)
	defer done()

	login, err := engine.Login(context.Background(), "priya@example.com", "correct-horse-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.VerifyMFA(context.Background(), login.TempToken, "000000"); !errors.Is(err, ErrMFACodeInvalid) {
		t.Fatalf("expected ErrMFACodeInvalid, got %v", err)
	}
	if !mr.Exists("mfc:patient-1") {
		t.Fatal("expected challenge to survive a wrong code")
	}

	code, err := mr.Get("mfc:patient-1")
	if err != nil {
		t.Fatalf("reading challenge: %v", err)
	}
	if _, err := engine.VerifyMFA(context.Background(), login.TempToken, code); err != nil {
		t.Fatalf("expected correct code to still work, got %v", err)
	}
}

func TestVerifyMFAExpiredChallenge(t *testing.T) {
	cfg := testConfig()
	store := newMemoryUserStore()
	seedMFAPatient(t, store, cfg)

	engine, mr, _, done := newAuthEngine(t, cfg, store, nil)
	defer done()

	login, err := engine.Login(context.Background(), "priya@example.com", "correct-horse-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code, err := mr.Get("mfc:patient-1")
	if err != nil {
		t.Fatalf("reading challenge: %v", err)
	}

	mr.FastForward(cfg.MFA.ChallengeTTL + time.Minute)

	if _, err := engine.VerifyMFA(context.Background(), login.TempToken, code); !errors.Is(err, ErrMFACodeExpired) {
		t.Fatalf("expected ErrMFACodeExpired, got %v", err)
	}
}

func TestVerifyMFARejectsNonTempToken(t *testing.T) {
	cfg := testConfig()
	store := newMemoryUserStore()
	seedPatient(t, store, cfg, "patient-2", "arun@example.com", "correct-horse-123")

	engine, _, _, done := newAuthEngine(t, cfg, store, nil)
	defer done()

	login, err := engine.Login(context.Background(), "arun@example.com", "correct-horse-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.VerifyMFA(context.Background(), login.AccessToken, "000000"); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestVerifyMFAExpiredTempToken(t *testing.T) {
	cfg := testConfig()
	store := newMemoryUserStore()
	seedMFAPatient(t, store, cfg)

	engine, mr, clock, done := newAuthEngine(t, cfg, store, nil)
	defer done()

	login, err := engine.Login(context.Background(), "priya@example.com", "correct-horse-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code, err := mr.Get("mfc:patient-1")
	if err != nil {
		t.Fatalf("reading challenge: %v", err)
	}

	clock.Advance(cfg.JWT.TempTTL + time.Minute)

	if _, err := engine.VerifyMFA(context.Background(), login.TempToken, code); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRequestMFACodeReplacesChallenge(t *testing.T) {
	cfg := testConfig()
	store := newMemoryUserStore()
	seedMFAPatient(t, store, cfg)

	engine, mr, _, done := newAuthEngine(t, cfg, store, nil)
	defer done()

	login, err := engine.Login(context.Background(), "priya@example.com", "correct-horse-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	first, err := mr.Get("mfc:patient-1")
	if err != nil {
		t.Fatalf("reading challenge: %v", err)
	}

	// Reissue until the code changes; identical six-digit draws are possible.
	replaced := false
	for i := 0; i < 5 && !replaced; i++ {
		if err := engine.RequestMFACode(context.Background(), login.TempToken); err != nil {
			t.Fatalf("RequestMFACode failed: %v", err)
		}
		second, err := mr.Get("mfc:patient-1")
		if err != nil {
			t.Fatalf("reading challenge: %v", err)
		}
		replaced = second != first
	}
	if !replaced {
		t.Fatal("expected reissued challenge to replace the old code")
	}

	// The replaced code must no longer verify.
	if _, err := engine.VerifyMFA(context.Background(), login.TempToken, first); !errors.Is(err, ErrMFACodeInvalid) {
		t.Fatalf("expected ErrMFACodeInvalid for stale code, got %v", err)
	}
}
