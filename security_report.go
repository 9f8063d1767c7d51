package goGuard

import "github.com/MrEthical07/goGuard/internal/security"

// SecurityReport is a read-only snapshot of the engine's defenses, returned
// by [Engine.SecurityReport].
type SecurityReport = security.Report

// PasswordConfigReport lists the argon2id parameters in a [SecurityReport].
type PasswordConfigReport = security.PasswordReport

// SecurityReport describes the throttles, lockout, session and audit
// settings the engine was built with.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return security.BuildReport(security.ReportInput{
		ProductionMode:           c.Security.ProductionMode,
		IdentityDigestKeyLen:     len(c.Security.IdentityDigestKey),
		CounterBackend:           e.counterBackend,
		TokenTTL:                 c.Recovery.TokenTTL,
		ResetResponseFloor:       c.Recovery.ResponseFloor,
		EnableIPThrottle:         c.Recovery.EnableIPThrottle,
		EnableIdentifierThrottle: c.Recovery.EnableIdentifierThrottle,
		EnableConfirmThrottle:    c.Recovery.EnableConfirmThrottle,
		EnableLoginThrottle:      c.Login.EnableIPThrottle,
		LoginResponseFloor:       c.Login.ResponseFloor,
		LockoutThreshold:         c.Lockout.Threshold,
		LockoutDuration:          c.Lockout.Duration,
		ExtendWhileLocked:        c.Lockout.ExtendWhileLocked,
		SessionsEnabled:          c.Session.Enabled,
		SigningMethod:            c.Session.SigningMethod,
		SessionTTL:               c.Session.TTL,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		AuditEnabled:        c.Audit.Enabled,
		AuditSinkConfigured: e.audit != nil,
		AuditAsync:          c.Audit.Async,
		AuditDropIfFull:     c.Audit.DropIfFull,
	})
}
