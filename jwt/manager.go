package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType defines a public type used by medauth APIs.
//
// TokenType instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenType string

const (
	// TokenAccess is an exported constant or variable used by the authentication engine.
	TokenAccess TokenType = "ACCESS"
	// TokenRefresh is an exported constant or variable used by the authentication engine.
	TokenRefresh TokenType = "REFRESH"
	// TokenTemp is an exported constant or variable used by the authentication engine.
	TokenTemp TokenType = "TEMP"
)

var (
	// ErrExpired is an exported constant or variable used by the authentication engine.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is an exported constant or variable used by the authentication engine.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongType is an exported constant or variable used by the authentication engine.
	ErrWrongType = errors.New("wrong token type")
)

// Config defines a public type used by medauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	TempTTL    time.Duration
	Issuer     string
	Leeway     time.Duration

	// Now is the clock used for iat/exp. nil means time.Now.
	Now func() time.Time
}

// Claims is the claim set shared by all three token types. Subject carries
// the account email.
type Claims struct {
	UserID      string    `json:"uid"`
	Role        string    `json:"role"`
	Authorities []string  `json:"authorities,omitempty"`
	TokenType   TokenType `json:"token_type"`
	MFAVerified bool      `json:"mfa_verified"`
	jwt.RegisteredClaims
}

// Manager defines a public type used by medauth APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// IssueParams is the input for [Manager.Issue].
type IssueParams struct {
	Type        TokenType
	Subject     string
	UserID      string
	Role        string
	Authorities []string
	MFAVerified bool
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("hs256 requires secret >= 256 bits")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.TempTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a token of the requested type. TEMP tokens are always issued
// with MFAVerified=false regardless of the parameter.
func (m *Manager) Issue(params IssueParams) (string, error) {
	var ttl time.Duration
	switch params.Type {
	case TokenAccess:
		ttl = m.config.AccessTTL
	case TokenRefresh:
		ttl = m.config.RefreshTTL
	case TokenTemp:
		ttl = m.config.TempTTL
		params.MFAVerified = false
	default:
		return "", ErrWrongType
	}

	now := m.config.Now()
	claims := Claims{
		UserID:      params.UserID,
		Role:        params.Role,
		Authorities: params.Authorities,
		TokenType:   params.Type,
		MFAVerified: params.MFAVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   params.Subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Secret)
}

// Parse verifies signature and expiry, then enforces the expected token
// type. Expiry wins over type confusion: an expired token of the wrong type
// reports [ErrExpired].
func (m *Manager) Parse(tokenStr string, expected TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.TokenType != expected {
		return nil, ErrWrongType
	}

	return claims, nil
}
