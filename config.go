package medauth

import (
	"errors"
	"time"
)

// Config defines a public type used by medauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT       JWTConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	MFA       MFAConfig
	Access    AccessConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by medauth APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	TempTTL    time.Duration
	// InactivityTimeout bounds the second expiry dimension of access
	// tokens: the token dies when neither validated nor touched for this
	// long, regardless of exp.
	InactivityTimeout time.Duration
	Issuer            string
	Leeway            time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by medauth APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
	// Retention bounds how long attempt history stays readable for
	// admin review. Must be >= Window.
	Retention time.Duration
}

// RateLimitConfig defines a public type used by medauth APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

// MFAConfig defines a public type used by medauth APIs.
//
// MFAConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MFAConfig struct {
	CodeDigits   int
	ChallengeTTL time.Duration
}

// AccessConfig defines a public type used by medauth APIs.
//
// AccessConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccessConfig struct {
	ConsentOTPDigits  int
	ConsentOTPTTL     time.Duration
	GrantTTL          time.Duration
	EmergencyGrantTTL time.Duration
	// RequestRetention is the Redis TTL on request records and their
	// listing indexes.
	RequestRetention time.Duration
	// VerifyTimeout bounds each IdentityVerifier call.
	VerifyTimeout time.Duration
}

// PasswordConfig defines a public type used by medauth APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig defines a public type used by medauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by medauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the config used by [New] before any overrides.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:         15 * time.Minute,
			RefreshTTL:        7 * 24 * time.Hour,
			TempTTL:           5 * time.Minute,
			InactivityTimeout: 15 * time.Minute,
			Issuer:            "medauth",
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    15 * time.Minute,
			Retention: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
		},
		MFA: MFAConfig{
			CodeDigits:   6,
			ChallengeTTL: 10 * time.Minute,
		},
		Access: AccessConfig{
			ConsentOTPDigits:  6,
			ConsentOTPTTL:     10 * time.Minute,
			GrantTTL:          24 * time.Hour,
			EmergencyGrantTTL: 1 * time.Hour,
			RequestRetention:  30 * 24 * time.Hour,
			VerifyTimeout:     5 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be >= 256 bits")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.TempTTL <= 0 {
		return errors.New("JWT TempTTL must be > 0")
	}
	if c.JWT.InactivityTimeout <= 0 {
		return errors.New("JWT InactivityTimeout must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}
	if c.Lockout.Retention < c.Lockout.Window {
		return errors.New("Lockout Retention must be >= Window")
	}

	// Rate limit
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("RateLimit RequestsPerMinute must be > 0 when enabled")
	}

	// MFA
	if c.MFA.CodeDigits < 6 || c.MFA.CodeDigits > 10 {
		return errors.New("MFA CodeDigits must be between 6 and 10")
	}
	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("MFA ChallengeTTL must be > 0")
	}

	// Access grants
	if c.Access.ConsentOTPDigits < 6 || c.Access.ConsentOTPDigits > 10 {
		return errors.New("Access ConsentOTPDigits must be between 6 and 10")
	}
	if c.Access.ConsentOTPTTL <= 0 {
		return errors.New("Access ConsentOTPTTL must be > 0")
	}
	if c.Access.GrantTTL <= 0 {
		return errors.New("Access GrantTTL must be > 0")
	}
	if c.Access.EmergencyGrantTTL <= 0 {
		return errors.New("Access EmergencyGrantTTL must be > 0")
	}
	if c.Access.RequestRetention < c.Access.GrantTTL {
		return errors.New("Access RequestRetention must be >= GrantTTL")
	}
	if c.Access.VerifyTimeout <= 0 {
		return errors.New("Access VerifyTimeout must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
