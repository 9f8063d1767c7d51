package flows

import (
	"context"
	"errors"
	"time"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Recovery RecoveryDeps
	Login    LoginDeps
}

// AuditRecord is the flow-level view of one audit event. The engine maps it
// onto its own event type.
type AuditRecord struct {
	Action         string
	Outcome        string
	IdentityDigest string
	IPDigest       string
	AccountID      string
	High           bool
	Err            error
	Metadata       map[string]string
}

// Audit outcome tags shared by every flow.
const (
	OutcomeSuccess         = "success"
	OutcomeThrottled       = "throttled"
	OutcomeError           = "error"
	OutcomeUnknownIdentity = "unknown_identity"
	OutcomeInactive        = "inactive"
	OutcomeTokenIssued     = "token_issued"
	OutcomeInvalidToken    = "invalid_token"
	OutcomeInvalidPassword = "invalid_password"
	OutcomeInvalidRequest  = "invalid_request"
	OutcomeBadPassword     = "bad_password"
	OutcomeLocked          = "locked"
)

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// padUntil sleeps until start+floor has elapsed according to now.
func padUntil(ctx context.Context, start time.Time, floor time.Duration, now func() time.Time, sleep func(context.Context, time.Duration) error) error {
	if floor <= 0 {
		return nil
	}
	remaining := floor - now().Sub(start)
	if remaining <= 0 {
		return nil
	}
	return sleep(ctx, remaining)
}

func noopMetric(int)                        {}
func noopObserve(int, time.Duration)        {}
func noopAudit(context.Context, AuditRecord) {}
