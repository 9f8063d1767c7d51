package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report summarizes the defenses an engine runs with.
type Report struct {
	ProductionMode     bool
	DigestKeyed        bool
	CounterBackend     string
	ResetTokenTTL      time.Duration
	ResetResponseFloor time.Duration
	ResetThrottles     []string
	LoginThrottle      bool
	LoginPadded        bool
	LockoutThreshold   int
	LockoutDuration    time.Duration
	LockoutExtends     bool
	SessionsEnabled    bool
	SigningAlgorithm   string
	SessionTTL         time.Duration
	Argon2             PasswordReport
	AuditMode          string
}

type ReportInput struct {
	ProductionMode           bool
	IdentityDigestKeyLen     int
	CounterBackend           string
	TokenTTL                 time.Duration
	ResetResponseFloor       time.Duration
	EnableIPThrottle         bool
	EnableIdentifierThrottle bool
	EnableConfirmThrottle    bool
	EnableLoginThrottle      bool
	LoginResponseFloor       time.Duration
	LockoutThreshold         int
	LockoutDuration          time.Duration
	ExtendWhileLocked        bool
	SessionsEnabled          bool
	SigningMethod            string
	SessionTTL               time.Duration
	Password                 PasswordReport
	AuditEnabled             bool
	AuditSinkConfigured      bool
	AuditAsync               bool
	AuditDropIfFull          bool
}

func BuildReport(input ReportInput) Report {
	var throttles []string
	if input.EnableIPThrottle {
		throttles = append(throttles, "request_ip")
	}
	if input.EnableIdentifierThrottle {
		throttles = append(throttles, "request_identifier")
	}
	if input.EnableConfirmThrottle {
		throttles = append(throttles, "confirm_ip")
	}

	audit := "off"
	switch {
	case !input.AuditEnabled || !input.AuditSinkConfigured:
	case input.AuditAsync && input.AuditDropIfFull:
		audit = "async_drop"
	case input.AuditAsync:
		audit = "async_block"
	default:
		audit = "sync"
	}

	signing := ""
	sessionTTL := time.Duration(0)
	if input.SessionsEnabled {
		signing = input.SigningMethod
		sessionTTL = input.SessionTTL
	}

	return Report{
		ProductionMode:     input.ProductionMode,
		DigestKeyed:        input.IdentityDigestKeyLen > 0,
		CounterBackend:     input.CounterBackend,
		ResetTokenTTL:      input.TokenTTL,
		ResetResponseFloor: input.ResetResponseFloor,
		ResetThrottles:     throttles,
		LoginThrottle:      input.EnableLoginThrottle,
		LoginPadded:        input.LoginResponseFloor > 0,
		LockoutThreshold:   input.LockoutThreshold,
		LockoutDuration:    input.LockoutDuration,
		LockoutExtends:     input.ExtendWhileLocked,
		SessionsEnabled:    input.SessionsEnabled,
		SigningAlgorithm:   signing,
		SessionTTL:         sessionTTL,
		Argon2:             input.Password,
		AuditMode:          audit,
	}
}
