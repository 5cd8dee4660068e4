package medauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sentinelmed/medauth/password"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	// Cheapest parameters Validate accepts; production strength is not
	// under test here.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

// testClock is a mutable time source shared by the engine and the test.
type testClock struct {
	mu sync.Mutex
	at time.Time
}

func newTestClock() *testClock {
	return &testClock{at: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type memoryUserStore struct {
	mu        sync.RWMutex
	byID      map[string]*Identity
	byEmail   map[string]string
	byLicense map[string]string
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		byID:      make(map[string]*Identity),
		byEmail:   make(map[string]string),
		byLicense: make(map[string]string),
	}
}

func (s *memoryUserStore) Put(identity *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[identity.ID] = identity
	s.byEmail[identity.Email] = identity.ID
	if identity.Doctor != nil {
		s.byLicense[identity.Doctor.LicenseNumber] = identity.ID
	}
}

func (s *memoryUserStore) FindByID(_ context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return identity, nil
}

func (s *memoryUserStore) FindByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *memoryUserStore) FindByLicenseNumber(_ context.Context, licenseNumber string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLicense[licenseNumber]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.byID[id], nil
}

type stubVerifier struct {
	mu         sync.Mutex
	ok         bool
	err        error
	lastNatID  string
	lastOTP    string
	callCount  int
	sawContext bool
}

func (v *stubVerifier) VerifyOTP(ctx context.Context, nationalID, otp string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastNatID = nationalID
	v.lastOTP = otp
	v.callCount++
	_, v.sawContext = ctx.Deadline()
	return v.ok, v.err
}

func newAuthEngine(t *testing.T, cfg Config, store UserStore, verifier IdentityVerifier) (*Engine, *miniredis.Miniredis, *testClock, func()) {
	t.Helper()
	return newAuthEngineWithSink(t, cfg, store, verifier, nil)
}

func newAuthEngineWithSink(t *testing.T, cfg Config, store UserStore, verifier IdentityVerifier, sink AuditSink) (*Engine, *miniredis.Miniredis, *testClock, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithClock(clock.Now)
	if verifier != nil {
		builder = builder.WithIdentityVerifier(verifier)
	}
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mr, clock, func() {
		engine.Close()
		mr.Close()
	}
}

func hashPassword(t *testing.T, cfg Config, plain string) string {
	t.Helper()

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return hash
}

func seedPatient(t *testing.T, store *memoryUserStore, cfg Config, id, email, plain string) *Identity {
	t.Helper()

	identity := &Identity{
		ID:           id,
		Email:        email,
		PasswordHash: hashPassword(t, cfg, plain),
		Role:         RolePatient,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	store.Put(identity)
	return identity
}

func seedDoctor(t *testing.T, store *memoryUserStore, cfg Config, id, email, license, plain string, status VerificationStatus) *Identity {
	t.Helper()

	identity := &Identity{
		ID:           id,
		Email:        email,
		PasswordHash: hashPassword(t, cfg, plain),
		Role:         RoleDoctor,
		Active:       true,
		CreatedAt:    time.Now(),
		Doctor: &DoctorProfile{
			LicenseNumber:      license,
			LicenseExpiry:      time.Now().Add(365 * 24 * time.Hour),
			VerificationStatus: status,
		},
	}
	store.Put(identity)
	return identity
}
