package goGuard

import (
	"fmt"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	// LintInfo is an exported constant or variable used by the authentication engine.
	LintInfo LintSeverity = iota
	// LintWarn is an exported constant or variable used by the authentication engine.
	LintWarn
	// LintHigh is an exported constant or variable used by the authentication engine.
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is one advisory finding. Lint findings never block Build.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns the findings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports valid but questionable settings.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if !c.Recovery.EnableIPThrottle && !c.Recovery.EnableIdentifierThrottle {
		add("reset_throttle_disabled", LintHigh, "both reset request throttles are disabled")
	}
	if !c.Login.EnableIPThrottle {
		add("login_throttle_disabled", LintWarn, "login per-IP throttle is disabled")
	}
	if c.Recovery.TokenTTL > 2*time.Hour {
		add("reset_ttl_long", LintWarn, "reset tokens live %s; one hour or less is typical", c.Recovery.TokenTTL)
	}
	if c.Recovery.ResponseFloor < 250*time.Millisecond {
		add("reset_floor_short", LintInfo, "reset response floor %s may not cover slow account lookups", c.Recovery.ResponseFloor)
	}
	if c.Lockout.Threshold > 10 {
		add("lockout_threshold_high", LintWarn, "lockout threshold %d allows many guesses per window", c.Lockout.Threshold)
	}
	if c.Lockout.Duration > maxLockoutDuration {
		add("lockout_long", LintInfo, "lockout duration %s lets attackers deny access for longer", c.Lockout.Duration)
	}
	if c.Login.ResponseFloor == 0 {
		add("login_floor_disabled", LintInfo, "login responses are not padded; unknown identities still pay a decoy hash")
	}
	if len(c.Security.IdentityDigestKey) == 0 {
		add("digest_unkeyed", LintWarn, "identity digests are unkeyed SHA-256 and can be brute forced from a known email list")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintHigh, "audit events are disabled")
	}
	if c.Audit.Async && c.Audit.DropIfFull {
		add("audit_may_drop", LintInfo, "async audit drops events when the buffer is full")
	}
	if c.Password.MinStrengthScore == 0 && c.Password.MinClasses == 0 {
		add("password_policy_length_only", LintInfo, "password policy checks length only")
	}
	if c.Session.Enabled && c.Session.TTL > time.Hour {
		add("session_ttl_long", LintWarn, "session grants live %s", c.Session.TTL)
	}
	return ws
}
