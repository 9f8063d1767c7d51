package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LoginAccount is the account projection the login flow needs.
type LoginAccount struct {
	ID             string
	Email          string
	PasswordHash   string
	Active         bool
	FailedAttempts int
	LockoutUntil   time.Time
}

// Locked reports whether the lockout window covers now.
func (a LoginAccount) Locked(now time.Time) bool {
	return !a.LockoutUntil.IsZero() && a.LockoutUntil.After(now)
}

// LoginTx is the transactional surface used to read and write lockout state.
type LoginTx interface {
	GetAccount(ctx context.Context, accountID string) (LoginAccount, error)
	UpdateLoginState(ctx context.Context, accountID string, failedAttempts int, lockoutUntil time.Time) error
	UpdatePasswordHash(ctx context.Context, accountID, encodedHash string) error
}

// LoginSession is the session grant returned on success.
type LoginSession struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// LoginResult describes a completed login attempt.
type LoginResult struct {
	AccountID string
	Outcome   string
	Session   LoginSession
}

type LoginMetrics struct {
	Success          int
	Failure          int
	Locked           int
	LockoutTriggered int
	Throttled        int
	Persistence      int
	Latency          int
}

type LoginEvents struct {
	Login   string
	Lockout string
}

type LoginErrors struct {
	EngineNotReady     error
	Validation         error
	Throttled          error
	InvalidCredentials error
	AccountLocked      error
	Persistence        error
	AccountNotFound    error
}

type LoginDeps struct {
	Threshold         int
	LockoutDuration   time.Duration
	ExtendWhileLocked bool
	ResponseFloor     time.Duration

	Now       func() time.Time
	Sleep     func(context.Context, time.Duration) error
	Normalize func(string) string
	Digest    func(string) string

	CheckAttempt  func(ctx context.Context, ipDigest string) error
	IsRateLimited func(error) bool

	GetAccount     func(ctx context.Context, identifier string) (LoginAccount, error)
	VerifyPassword func(password, encodedHash string) (bool, error)
	VerifyDecoy    func(password string)
	// RehashPassword returns a replacement hash when encodedHash was made
	// with weaker parameters than the current ones, or "" to keep it.
	RehashPassword func(password, encodedHash string) string
	WithinTx       func(ctx context.Context, fn func(ctx context.Context, tx LoginTx) error) error
	IssueSession   func(ctx context.Context, accountID string) (LoginSession, error)

	LogFailure func(ctx context.Context, op string, err error)
	LogLockout func(ctx context.Context, accountID string, until time.Time)

	MetricInc func(int)
	Observe   func(int, time.Duration)
	EmitAudit func(context.Context, AuditRecord)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunAuthenticate checks a credential pair, maintains the consecutive-failure
// counter and the lockout window, and issues a session on success. Every
// failure surfaces as InvalidCredentials; a locked account additionally wraps
// AccountLocked so callers can log it without showing it.
func RunAuthenticate(ctx context.Context, identifier, password, callerIP string, deps LoginDeps) (LoginResult, error) {
	normalizeLoginDeps(&deps)
	if deps.GetAccount == nil || deps.VerifyPassword == nil || deps.WithinTx == nil {
		return LoginResult{}, deps.Errors.EngineNotReady
	}

	start := deps.Now()
	defer func() {
		deps.Observe(deps.Metrics.Latency, deps.Now().Sub(start))
	}()

	identifier = deps.Normalize(identifier)
	ipDigest := digestOrEmpty(deps.Digest, callerIP)
	identityDigest := digestOrEmpty(deps.Digest, identifier)
	record := AuditRecord{
		Action:         deps.Events.Login,
		IdentityDigest: identityDigest,
		IPDigest:       ipDigest,
	}
	finish := func(outcome string, result LoginResult, ret error) (LoginResult, error) {
		result.Outcome = outcome
		if sleepErr := padUntil(ctx, start, deps.ResponseFloor, deps.Now, deps.Sleep); sleepErr != nil && ret == nil {
			ret = sleepErr
		}
		record.Outcome = outcome
		if record.AccountID == "" {
			record.AccountID = result.AccountID
		}
		deps.EmitAudit(ctx, record)
		return result, ret
	}

	if identifier == "" || password == "" {
		deps.MetricInc(deps.Metrics.Failure)
		record.Err = deps.Errors.Validation
		return finish(OutcomeInvalidRequest, LoginResult{}, deps.Errors.Validation)
	}

	if deps.CheckAttempt != nil {
		if err := deps.CheckAttempt(ctx, ipDigest); err != nil {
			if deps.IsRateLimited(err) {
				deps.MetricInc(deps.Metrics.Throttled)
				record.Outcome = OutcomeThrottled
				record.Err = deps.Errors.Throttled
				deps.EmitAudit(ctx, record)
				return LoginResult{Outcome: OutcomeThrottled}, deps.Errors.Throttled
			}
			deps.MetricInc(deps.Metrics.Persistence)
			deps.LogFailure(ctx, "login_counter", err)
			record.Err = err
			return finish(OutcomeError, LoginResult{}, fmt.Errorf("%w: %v", deps.Errors.Persistence, err))
		}
	}

	account, err := deps.GetAccount(ctx, identifier)
	if err != nil {
		if isContextErr(err) {
			return LoginResult{}, err
		}
		if !errors.Is(err, deps.Errors.AccountNotFound) {
			deps.MetricInc(deps.Metrics.Persistence)
			deps.LogFailure(ctx, "login_lookup", err)
			record.Err = err
			return finish(OutcomeError, LoginResult{}, fmt.Errorf("%w: %v", deps.Errors.Persistence, err))
		}
		deps.VerifyDecoy(password)
		deps.MetricInc(deps.Metrics.Failure)
		return finish(OutcomeUnknownIdentity, LoginResult{}, deps.Errors.InvalidCredentials)
	}
	if !account.Active {
		deps.VerifyDecoy(password)
		deps.MetricInc(deps.Metrics.Failure)
		record.Metadata = map[string]string{"reason": "inactive"}
		return finish(OutcomeUnknownIdentity, LoginResult{AccountID: account.ID}, deps.Errors.InvalidCredentials)
	}

	now := deps.Now()
	if account.Locked(now) {
		// Same CPU cost as a real verification; the password is not checked.
		deps.VerifyDecoy(password)
		if err := deps.WithinTx(ctx, func(ctx context.Context, tx LoginTx) error {
			return recordLockedAttempt(ctx, tx, account.ID, now, deps)
		}); err != nil {
			return persistenceFailure(ctx, deps, finish, account.ID, err)
		}
		deps.MetricInc(deps.Metrics.Locked)
		deps.MetricInc(deps.Metrics.Failure)
		return finish(OutcomeLocked, LoginResult{AccountID: account.ID}, fmt.Errorf("%w: %w", deps.Errors.InvalidCredentials, deps.Errors.AccountLocked))
	}

	match, verifyErr := deps.VerifyPassword(password, account.PasswordHash)
	if verifyErr != nil {
		deps.LogFailure(ctx, "login_verify", verifyErr)
		match = false
	}

	if !match {
		var (
			triggered   bool
			alreadyLock bool
			until       time.Time
		)
		err := deps.WithinTx(ctx, func(ctx context.Context, tx LoginTx) error {
			// Stores may rerun fn after an optimistic conflict.
			triggered = false
			current, err := tx.GetAccount(ctx, account.ID)
			if err != nil {
				return err
			}
			failed := current.FailedAttempts
			lockoutUntil := time.Time{}
			alreadyLock = current.Locked(now)
			if alreadyLock {
				lockoutUntil = current.LockoutUntil
				if deps.ExtendWhileLocked {
					lockoutUntil = now.Add(deps.LockoutDuration)
				}
			} else if !current.LockoutUntil.IsZero() {
				// The previous lockout has elapsed; count from zero.
				failed = 0
			}
			failed++
			if !alreadyLock && failed >= deps.Threshold {
				lockoutUntil = now.Add(deps.LockoutDuration)
				triggered = true
			}
			until = lockoutUntil
			return tx.UpdateLoginState(ctx, account.ID, failed, lockoutUntil)
		})
		if err != nil {
			return persistenceFailure(ctx, deps, finish, account.ID, err)
		}
		deps.MetricInc(deps.Metrics.Failure)
		if verifyErr != nil {
			record.Err = verifyErr
		}
		switch {
		case triggered:
			deps.MetricInc(deps.Metrics.LockoutTriggered)
			deps.LogLockout(ctx, account.ID, until)
			record.Action = deps.Events.Lockout
			record.High = true
			record.Metadata = map[string]string{"lockout_until": until.UTC().Format(time.RFC3339)}
			return finish(OutcomeBadPassword, LoginResult{AccountID: account.ID}, deps.Errors.InvalidCredentials)
		case alreadyLock:
			deps.MetricInc(deps.Metrics.Locked)
			return finish(OutcomeLocked, LoginResult{AccountID: account.ID}, fmt.Errorf("%w: %w", deps.Errors.InvalidCredentials, deps.Errors.AccountLocked))
		default:
			return finish(OutcomeBadPassword, LoginResult{AccountID: account.ID}, deps.Errors.InvalidCredentials)
		}
	}

	// Hashed outside the transaction so no row lock is held across argon2.
	upgraded := ""
	if deps.RehashPassword != nil {
		upgraded = deps.RehashPassword(password, account.PasswordHash)
	}

	lockedMeanwhile := false
	rehashed := false
	err = deps.WithinTx(ctx, func(ctx context.Context, tx LoginTx) error {
		lockedMeanwhile = false
		rehashed = false
		current, err := tx.GetAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		if current.Locked(now) {
			// A concurrent failure locked the account after our first read.
			lockedMeanwhile = true
			return recordLockedAttempt(ctx, tx, account.ID, now, deps)
		}
		// A reset that landed since the first read owns the hash now.
		if upgraded != "" && current.PasswordHash == account.PasswordHash {
			if err := tx.UpdatePasswordHash(ctx, account.ID, upgraded); err != nil {
				return err
			}
			rehashed = true
		}
		if current.FailedAttempts == 0 && current.LockoutUntil.IsZero() {
			return nil
		}
		return tx.UpdateLoginState(ctx, account.ID, 0, time.Time{})
	})
	if err != nil {
		return persistenceFailure(ctx, deps, finish, account.ID, err)
	}
	if lockedMeanwhile {
		deps.MetricInc(deps.Metrics.Locked)
		deps.MetricInc(deps.Metrics.Failure)
		return finish(OutcomeLocked, LoginResult{AccountID: account.ID}, fmt.Errorf("%w: %w", deps.Errors.InvalidCredentials, deps.Errors.AccountLocked))
	}

	result := LoginResult{AccountID: account.ID}
	if deps.IssueSession != nil {
		session, err := deps.IssueSession(ctx, account.ID)
		if err != nil {
			return persistenceFailure(ctx, deps, finish, account.ID, err)
		}
		result.Session = session
	}
	if rehashed {
		record.Metadata = map[string]string{"password_rehashed": "true"}
	}
	deps.MetricInc(deps.Metrics.Success)
	return finish(OutcomeSuccess, result, nil)
}

func recordLockedAttempt(ctx context.Context, tx LoginTx, accountID string, now time.Time, deps LoginDeps) error {
	current, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	lockoutUntil := current.LockoutUntil
	if !current.Locked(now) {
		lockoutUntil = time.Time{}
	} else if deps.ExtendWhileLocked {
		lockoutUntil = now.Add(deps.LockoutDuration)
	}
	return tx.UpdateLoginState(ctx, accountID, current.FailedAttempts+1, lockoutUntil)
}

func persistenceFailure(
	ctx context.Context,
	deps LoginDeps,
	finish func(string, LoginResult, error) (LoginResult, error),
	accountID string,
	err error,
) (LoginResult, error) {
	if isContextErr(err) {
		return LoginResult{}, err
	}
	deps.MetricInc(deps.Metrics.Persistence)
	deps.LogFailure(ctx, "login_state", err)
	return finish(OutcomeError, LoginResult{AccountID: accountID}, fmt.Errorf("%w: %v", deps.Errors.Persistence, err))
}

func normalizeLoginDeps(deps *LoginDeps) {
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
	if deps.Threshold <= 0 {
		deps.Threshold = 5
	}
	if deps.LockoutDuration <= 0 {
		deps.LockoutDuration = 15 * time.Minute
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.VerifyDecoy == nil {
		deps.VerifyDecoy = func(string) {}
	}
	if deps.LogFailure == nil {
		deps.LogFailure = func(context.Context, string, error) {}
	}
	if deps.LogLockout == nil {
		deps.LogLockout = func(context.Context, string, time.Time) {}
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
	if deps.Errors.InvalidCredentials == nil {
		deps.Errors.InvalidCredentials = errors.New("invalid credentials")
	}
	if deps.Errors.AccountLocked == nil {
		deps.Errors.AccountLocked = errors.New("account locked")
	}
	if deps.Errors.Persistence == nil {
		deps.Errors.Persistence = errors.New("persistence failure")
	}
	if deps.Errors.AccountNotFound == nil {
		deps.Errors.AccountNotFound = errors.New("account not found")
	}
}
