package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RecoveryAccount is the account projection the recovery flow needs.
type RecoveryAccount struct {
	ID     string
	Email  string
	Active bool
}

// ResetTx is the transactional surface used when a reset is confirmed. All
// calls made through one ResetTx commit or roll back together.
type ResetTx interface {
	ConsumeToken(ctx context.Context, hash [32]byte, now time.Time) (string, error)
	GetAccount(ctx context.Context, accountID string) (RecoveryAccount, error)
	UpdatePasswordHash(ctx context.Context, accountID, hash string) error
	ClearLoginState(ctx context.Context, accountID string) error
}

type RecoveryMetrics struct {
	Request          int
	RequestThrottled int
	TokenIssued      int
	NotifyFailure    int
	ConfirmSuccess   int
	ConfirmFailure   int
	Persistence      int
	RequestLatency   int
	ConfirmLatency   int
}

type RecoveryEvents struct {
	Request string
	Confirm string
}

type RecoveryErrors struct {
	EngineNotReady  error
	Validation      error
	Throttled       error
	InvalidToken    error
	Persistence     error
	AccountNotFound error
	TokenNotFound   error
}

type RecoveryDeps struct {
	ResponseFloor       time.Duration
	MaxIdentifierLength int

	Now       func() time.Time
	Sleep     func(context.Context, time.Duration) error
	Normalize func(string) string
	Digest    func(string) string

	CheckRequestLimiter func(ctx context.Context, identifierDigest, ipDigest string) error
	CheckConfirmLimiter func(ctx context.Context, ipDigest string) error
	IsRateLimited       func(error) bool

	GetAccount  func(ctx context.Context, identifier string) (RecoveryAccount, error)
	IssueToken  func(ctx context.Context, accountID string) (raw string, expiresAt time.Time, err error)
	Notify      func(ctx context.Context, account RecoveryAccount, raw string, expiresAt time.Time) error
	DecodeToken func(raw string) ([32]byte, error)
	LookupToken func(ctx context.Context, hash [32]byte) (accountID string, ok bool, err error)

	ValidatePassword func(string) error
	HashPassword     func(string) (string, error)
	WithinTx         func(ctx context.Context, fn func(ctx context.Context, tx ResetTx) error) error

	LogFailure func(ctx context.Context, op string, err error)

	MetricInc func(int)
	Observe   func(int, time.Duration)
	EmitAudit func(context.Context, AuditRecord)

	Metrics RecoveryMetrics
	Events  RecoveryEvents
	Errors  RecoveryErrors
}

var errInactiveAccount = errors.New("account inactive")

// RunRequestReset handles a forgot-password submission. Every non-throttled
// outcome takes at least ResponseFloor and returns nil or a persistence
// error, so the caller cannot distinguish known from unknown identifiers.
func RunRequestReset(ctx context.Context, identifier, callerIP string, deps RecoveryDeps) error {
	normalizeRecoveryDeps(&deps)
	if deps.GetAccount == nil || deps.IssueToken == nil || deps.CheckRequestLimiter == nil {
		return deps.Errors.EngineNotReady
	}

	start := deps.Now()
	defer func() {
		deps.Observe(deps.Metrics.RequestLatency, deps.Now().Sub(start))
	}()
	deps.MetricInc(deps.Metrics.Request)

	identifier = deps.Normalize(identifier)
	ipDigest := digestOrEmpty(deps.Digest, callerIP)
	if identifier == "" || len(identifier) > deps.MaxIdentifierLength {
		deps.EmitAudit(ctx, AuditRecord{
			Action:   deps.Events.Request,
			Outcome:  OutcomeInvalidRequest,
			IPDigest: ipDigest,
			Err:      deps.Errors.Validation,
		})
		return deps.Errors.Validation
	}
	identityDigest := deps.Digest(identifier)

	if err := deps.CheckRequestLimiter(ctx, identityDigest, ipDigest); err != nil {
		if deps.IsRateLimited(err) {
			deps.MetricInc(deps.Metrics.RequestThrottled)
			deps.EmitAudit(ctx, AuditRecord{
				Action:         deps.Events.Request,
				Outcome:        OutcomeThrottled,
				IdentityDigest: identityDigest,
				IPDigest:       ipDigest,
				Err:            deps.Errors.Throttled,
			})
			return deps.Errors.Throttled
		}
		deps.MetricInc(deps.Metrics.Persistence)
		deps.LogFailure(ctx, "reset_request_counter", err)
		deps.EmitAudit(ctx, AuditRecord{
			Action:         deps.Events.Request,
			Outcome:        OutcomeError,
			IdentityDigest: identityDigest,
			IPDigest:       ipDigest,
			Err:            err,
		})
		return fmt.Errorf("%w: %v", deps.Errors.Persistence, err)
	}

	record := AuditRecord{
		Action:         deps.Events.Request,
		IdentityDigest: identityDigest,
		IPDigest:       ipDigest,
	}
	var result error

	account, err := deps.GetAccount(ctx, identifier)
	switch {
	case err != nil && errors.Is(err, deps.Errors.AccountNotFound):
		record.Outcome = OutcomeUnknownIdentity
	case err != nil && isContextErr(err):
		return err
	case err != nil:
		deps.MetricInc(deps.Metrics.Persistence)
		deps.LogFailure(ctx, "reset_request_lookup", err)
		record.Outcome = OutcomeError
		record.Err = err
		result = fmt.Errorf("%w: %v", deps.Errors.Persistence, err)
	case !account.Active:
		record.Outcome = OutcomeInactive
		record.AccountID = account.ID
	default:
		record.AccountID = account.ID
		raw, expiresAt, issueErr := deps.IssueToken(ctx, account.ID)
		if issueErr != nil {
			deps.MetricInc(deps.Metrics.Persistence)
			deps.LogFailure(ctx, "reset_token_issue", issueErr)
			record.Outcome = OutcomeError
			record.Err = issueErr
			result = fmt.Errorf("%w: %v", deps.Errors.Persistence, issueErr)
			break
		}
		deps.MetricInc(deps.Metrics.TokenIssued)
		record.Outcome = OutcomeTokenIssued
		record.Metadata = map[string]string{"delivery": "queued"}
		if deps.Notify != nil {
			if notifyErr := deps.Notify(ctx, account, raw, expiresAt); notifyErr != nil {
				// The token stays valid; the caller still sees the generic answer.
				deps.MetricInc(deps.Metrics.NotifyFailure)
				deps.LogFailure(ctx, "reset_notify", notifyErr)
				record.Metadata["delivery"] = "failed"
			}
		}
	}

	sleepErr := padUntil(ctx, start, deps.ResponseFloor, deps.Now, deps.Sleep)
	deps.EmitAudit(ctx, record)
	if result != nil {
		return result
	}
	return sleepErr
}

// RunConfirmReset redeems a reset token and stores a new password hash. The
// token is consumed, the hash written, and the lockout state cleared in one
// transaction; a concurrent redemption of the same token loses and reports
// an invalid token.
func RunConfirmReset(ctx context.Context, rawToken, newPassword, callerIP string, deps RecoveryDeps) (string, error) {
	normalizeRecoveryDeps(&deps)
	if deps.DecodeToken == nil || deps.LookupToken == nil || deps.HashPassword == nil || deps.WithinTx == nil {
		return "", deps.Errors.EngineNotReady
	}

	start := deps.Now()
	defer func() {
		deps.Observe(deps.Metrics.ConfirmLatency, deps.Now().Sub(start))
	}()

	ipDigest := digestOrEmpty(deps.Digest, callerIP)
	fail := func(outcome string, err error, ret error) (string, error) {
		deps.MetricInc(deps.Metrics.ConfirmFailure)
		deps.EmitAudit(ctx, AuditRecord{
			Action:   deps.Events.Confirm,
			Outcome:  outcome,
			IPDigest: ipDigest,
			Err:      err,
		})
		return "", ret
	}

	if deps.CheckConfirmLimiter != nil {
		if err := deps.CheckConfirmLimiter(ctx, ipDigest); err != nil {
			if deps.IsRateLimited(err) {
				return fail(OutcomeThrottled, deps.Errors.Throttled, deps.Errors.Throttled)
			}
			deps.MetricInc(deps.Metrics.Persistence)
			deps.LogFailure(ctx, "reset_confirm_counter", err)
			return fail(OutcomeError, err, fmt.Errorf("%w: %v", deps.Errors.Persistence, err))
		}
	}

	if deps.ValidatePassword != nil {
		if err := deps.ValidatePassword(newPassword); err != nil {
			return fail(OutcomeInvalidPassword, err, fmt.Errorf("%w: %w", deps.Errors.Validation, err))
		}
	}

	hash, err := deps.DecodeToken(rawToken)
	if err != nil {
		return fail(OutcomeInvalidToken, deps.Errors.InvalidToken, deps.Errors.InvalidToken)
	}
	if _, ok, err := deps.LookupToken(ctx, hash); err != nil {
		if isContextErr(err) {
			return "", err
		}
		deps.MetricInc(deps.Metrics.Persistence)
		deps.LogFailure(ctx, "reset_token_lookup", err)
		return fail(OutcomeError, err, fmt.Errorf("%w: %v", deps.Errors.Persistence, err))
	} else if !ok {
		return fail(OutcomeInvalidToken, deps.Errors.InvalidToken, deps.Errors.InvalidToken)
	}

	// Argon2 runs before the transaction so row locks are held briefly.
	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		return fail(OutcomeInvalidPassword, err, fmt.Errorf("%w: %w", deps.Errors.Validation, err))
	}

	var account RecoveryAccount
	err = deps.WithinTx(ctx, func(ctx context.Context, tx ResetTx) error {
		accountID, err := tx.ConsumeToken(ctx, hash, deps.Now())
		if err != nil {
			return err
		}
		account, err = tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !account.Active {
			return errInactiveAccount
		}
		if err := tx.UpdatePasswordHash(ctx, accountID, newHash); err != nil {
			return err
		}
		return tx.ClearLoginState(ctx, accountID)
	})
	if err != nil {
		switch {
		case errors.Is(err, deps.Errors.TokenNotFound),
			errors.Is(err, deps.Errors.AccountNotFound),
			errors.Is(err, errInactiveAccount):
			return fail(OutcomeInvalidToken, deps.Errors.InvalidToken, deps.Errors.InvalidToken)
		case isContextErr(err):
			return "", err
		default:
			deps.MetricInc(deps.Metrics.Persistence)
			deps.LogFailure(ctx, "reset_confirm_commit", err)
			return fail(OutcomeError, err, fmt.Errorf("%w: %v", deps.Errors.Persistence, err))
		}
	}

	deps.MetricInc(deps.Metrics.ConfirmSuccess)
	deps.EmitAudit(ctx, AuditRecord{
		Action:         deps.Events.Confirm,
		Outcome:        OutcomeSuccess,
		IdentityDigest: deps.Digest(deps.Normalize(account.Email)),
		IPDigest:       ipDigest,
		AccountID:      account.ID,
	})
	return account.ID, nil
}

func digestOrEmpty(digest func(string) string, value string) string {
	if value == "" {
		return ""
	}
	return digest(value)
}

func normalizeRecoveryDeps(deps *RecoveryDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = SleepContext
	}
	if deps.Normalize == nil {
		deps.Normalize = func(s string) string { return s }
	}
	if deps.Digest == nil {
		deps.Digest = func(s string) string { return s }
	}
	if deps.MaxIdentifierLength <= 0 {
		deps.MaxIdentifierLength = 254
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.LogFailure == nil {
		deps.LogFailure = func(context.Context, string, error) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.Observe == nil {
		deps.Observe = noopObserve
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Errors.EngineNotReady == nil {
		deps.Errors.EngineNotReady = errors.New("engine not initialized")
	}
	if deps.Errors.Validation == nil {
		deps.Errors.Validation = errors.New("validation failed")
	}
	if deps.Errors.Throttled == nil {
		deps.Errors.Throttled = errors.New("throttled")
	}
	if deps.Errors.InvalidToken == nil {
		deps.Errors.InvalidToken = errors.New("invalid token")
	}
	if deps.Errors.Persistence == nil {
		deps.Errors.Persistence = errors.New("persistence failure")
	}
	if deps.Errors.AccountNotFound == nil {
		deps.Errors.AccountNotFound = errors.New("account not found")
	}
	if deps.Errors.TokenNotFound == nil {
		deps.Errors.TokenNotFound = errors.New("token not found")
	}
}
