package goGuard

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

// Config defines a public type used by goGuard APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Recovery RecoveryConfig
	Login    LoginConfig
	Lockout  LockoutConfig
	Password PasswordConfig
	Session  SessionConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RecoveryConfig controls reset token issuance and the throttles in front of
// the forgot-password and reset-confirmation operations.
type RecoveryConfig struct {
	TokenTTL      time.Duration
	ResponseFloor time.Duration
	// ResetURLBase is the page that receives ?token=<raw>.
	ResetURLBase string

	EnableIPThrottle         bool
	IPWindow                 time.Duration
	IPMax                    int
	EnableIdentifierThrottle bool
	IdentifierWindow         time.Duration
	IdentifierMax            int
	EnableConfirmThrottle    bool
	ConfirmIPWindow          time.Duration
	ConfirmIPMax             int
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls the per-IP login throttle and optional timing floor.
type LoginConfig struct {
	EnableIPThrottle bool
	IPWindow         time.Duration
	IPMax            int
	// ResponseFloor pads every non-throttled login response; 0 disables it.
	ResponseFloor time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls per-account lockout after consecutive failures.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	// ExtendWhileLocked restarts the lockout window on every failure made
	// while the account is locked. When false the window is left unchanged.
	ExtendWhileLocked bool
	// AllowLongLockout lifts the 15 minute ceiling on Duration.
	AllowLongLockout bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries argon2id cost parameters and the policy applied to
// new passwords.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int

	MinLength        int
	MaxLength        int
	MinClasses       int
	MinStrengthScore int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session grant issued after a successful login.
// When Enabled is false only an opaque session id is returned.
type SessionConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "hs256" or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
}

// AuditConfig defines a public type used by goGuard APIs.
//
// When Async is true events pass through a bounded dispatcher; otherwise the
// sink is called on the request goroutine.
type AuditConfig struct {
	Enabled    bool
	Async      bool
	BufferSize int
	DropIfFull bool
	// Required makes Build fail when no sink is configured.
	Required bool
}

// MetricsConfig defines a public type used by goGuard APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds keys and namespaces shared by several components.
type SecurityConfig struct {
	// IdentityDigestKey keys the HMAC applied to identifiers and IPs before
	// they reach counters, logs and audit. Empty falls back to plain SHA-256.
	IdentityDigestKey []byte
	CounterPrefix     string
	ProductionMode    bool
}

const (
	// MaxIdentifierLength is an exported constant or variable used by the authentication engine.
	MaxIdentifierLength = 254

	minResetResponseFloor = 200 * time.Millisecond
	maxResponseFloor      = 5 * time.Second
	minLockoutDuration    = 5 * time.Minute
	maxLockoutDuration    = 15 * time.Minute
)

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	argon := password.DefaultConfig()
	return Config{
		Recovery: RecoveryConfig{
			TokenTTL:                 time.Hour,
			ResponseFloor:            300 * time.Millisecond,
			ResetURLBase:             "http://localhost:8080/reset",
			EnableIPThrottle:         true,
			IPWindow:                 15 * time.Minute,
			IPMax:                    5,
			EnableIdentifierThrottle: true,
			IdentifierWindow:         time.Hour,
			IdentifierMax:            3,
			EnableConfirmThrottle:    true,
			ConfirmIPWindow:          15 * time.Minute,
			ConfirmIPMax:             10,
		},
		Login: LoginConfig{
			EnableIPThrottle: true,
			IPWindow:         15 * time.Minute,
			IPMax:            20,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:           argon.Memory,
			Time:             argon.Time,
			Parallelism:      argon.Parallelism,
			SaltLength:       argon.SaltLength,
			KeyLength:        argon.KeyLength,
			MaxPasswordBytes: argon.MaxPasswordBytes,
			MinLength:        password.MinPolicyLength,
			MaxLength:        128,
		},
		Session: SessionConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "goguard",
		},
		Audit: AuditConfig{
			Enabled:    true,
			Async:      false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Security: SecurityConfig{
			CounterPrefix: "gg:att:",
		},
	}
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

// HighSecurityConfig tightens throttles, pads login responses and extends
// lockouts on continued failures.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Recovery.TokenTTL = 30 * time.Minute
	cfg.Recovery.ResponseFloor = 500 * time.Millisecond
	cfg.Recovery.IPMax = 3
	cfg.Login.IPMax = 10
	cfg.Login.ResponseFloor = 250 * time.Millisecond
	cfg.Lockout.Threshold = 5
	cfg.Lockout.ExtendWhileLocked = true
	cfg.Password.MinLength = 12
	cfg.Password.MinClasses = 3
	cfg.Password.MinStrengthScore = 3
	cfg.Audit.Required = true
	cfg.Security.ProductionMode = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	out.Security.IdentityDigestKey = cloneBytes(cfg.Security.IdentityDigestKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:           c.Memory,
		Time:             c.Time,
		Parallelism:      c.Parallelism,
		SaltLength:       c.SaltLength,
		KeyLength:        c.KeyLength,
		MaxPasswordBytes: c.MaxPasswordBytes,
	}
}

func (c PasswordConfig) policy() password.PolicyConfig {
	return password.PolicyConfig{
		MinLength:        c.MinLength,
		MaxLength:        c.MaxLength,
		MinClasses:       c.MinClasses,
		MinStrengthScore: c.MinStrengthScore,
	}
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
	// Recovery
	if c.Recovery.TokenTTL <= 0 {
		return errors.New("Recovery TokenTTL must be > 0")
	}
	if c.Recovery.ResponseFloor < minResetResponseFloor || c.Recovery.ResponseFloor > maxResponseFloor {
		return errors.New("Recovery ResponseFloor must be within [200ms, 5s]")
	}
	if strings.TrimSpace(c.Recovery.ResetURLBase) == "" {
		return errors.New("Recovery ResetURLBase must be set")
	}
	if c.Recovery.EnableIPThrottle && (c.Recovery.IPWindow <= 0 || c.Recovery.IPMax <= 0) {
		return errors.New("Recovery IP throttle requires IPWindow > 0 and IPMax > 0")
	}
	if c.Recovery.EnableIdentifierThrottle && (c.Recovery.IdentifierWindow <= 0 || c.Recovery.IdentifierMax <= 0) {
		return errors.New("Recovery identifier throttle requires IdentifierWindow > 0 and IdentifierMax > 0")
	}
	if c.Recovery.EnableConfirmThrottle && (c.Recovery.ConfirmIPWindow <= 0 || c.Recovery.ConfirmIPMax <= 0) {
		return errors.New("Recovery confirm throttle requires ConfirmIPWindow > 0 and ConfirmIPMax > 0")
	}

	// Login
	if c.Login.EnableIPThrottle && (c.Login.IPWindow <= 0 || c.Login.IPMax <= 0) {
		return errors.New("Login IP throttle requires IPWindow > 0 and IPMax > 0")
	}
	if c.Login.ResponseFloor < 0 || c.Login.ResponseFloor > maxResponseFloor {
		return errors.New("Login ResponseFloor must be within [0, 5s]")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration < minLockoutDuration {
		return errors.New("Lockout Duration must be >= 5m")
	}
	if c.Lockout.Duration > maxLockoutDuration && !c.Lockout.AllowLongLockout {
		return errors.New("Lockout Duration above 15m requires AllowLongLockout")
	}

	// Password
	if c.Password.MinLength < password.MinPolicyLength {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.MaxLength > 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MaxLength > 0 && c.Password.MaxLength*4 > c.Password.MaxPasswordBytes {
		return errors.New("Password MaxLength must fit within MaxPasswordBytes")
	}
	if c.Password.MinClasses < 0 || c.Password.MinClasses > 4 {
		return errors.New("Password MinClasses must be within [0, 4]")
	}
	if c.Password.MinStrengthScore < 0 || c.Password.MinStrengthScore > 4 {
		return errors.New("Password MinStrengthScore must be within [0, 4]")
	}
	if c.Password.Memory == 0 || c.Password.Time == 0 || c.Password.Parallelism == 0 {
		return errors.New("Password argon2 parameters must be > 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.Enabled {
		switch c.Session.SigningMethod {
		case "hs256":
			if len(c.Session.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		case "ed25519":
			if len(c.Session.PrivateKey) == 0 {
				return errors.New("ed25519 requires PrivateKey")
			}
		default:
			return errors.New("unsupported Session signing method")
		}
	}

	// Audit
	if c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Async is true")
	}

	// Security
	if c.Security.ProductionMode && len(c.Security.IdentityDigestKey) < 32 {
		return errors.New("ProductionMode requires an IdentityDigestKey of at least 32 bytes")
	}
	if strings.TrimSpace(c.Security.CounterPrefix) == "" {
		return errors.New("Security CounterPrefix must be set")
	}

	return nil
}
