package goGuard

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goGuard/internal"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/password"
)

// Engine defines a public type used by goGuard APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config          Config
	store           Store
	tokens          *RecoveryTokens
	counter         AttemptCounter
	counterBackend  string
	recoveryLimiter *limiters.RecoveryLimiter
	loginLimiter    *limiters.LoginLimiter
	notifier        Notifier
	audit           AuditSink
	dispatcher      *internalaudit.Dispatcher
	metrics         *Metrics
	passwordHash    *password.Argon2
	policy          *password.Policy
	jwtManager      *jwt.Manager
	log             zerolog.Logger
	now             func() time.Time
	sleep           func(context.Context, time.Duration) error
	flowDeps        flows.Deps
}

// Close flushes buffered audit events. It does not close the store, the
// notifier or the audit sink; their owners do.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Tokens exposes the reset token lifecycle.
func (e *Engine) Tokens() *RecoveryTokens {
	if e == nil {
		return nil
	}
	return e.tokens
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// VerifySession parses a session grant issued by [Engine.Authenticate].
func (e *Engine) VerifySession(_ context.Context, token string) (SessionInfo, error) {
	if e == nil || e.jwtManager == nil {
		return SessionInfo{}, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseSession(token)
	if err != nil {
		return SessionInfo{}, errors.Join(ErrSessionInvalid, err)
	}
	info := SessionInfo{
		AccountID: claims.Subject,
		SessionID: claims.SID,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) digest(value string) string {
	return internal.IdentityDigest(e.config.Security.IdentityDigestKey, value)
}

func (e *Engine) resetURL(raw string) string {
	u, err := url.Parse(e.config.Recovery.ResetURLBase)
	if err != nil {
		return e.config.Recovery.ResetURLBase + "?token=" + url.QueryEscape(raw)
	}
	q := u.Query()
	q.Set("token", raw)
	u.RawQuery = q.Encode()
	return u.String()
}

func (e *Engine) logFailure(ctx context.Context, op string, err error) {
	ev := e.log.Error()
	if op == "reset_notify" {
		ev = e.log.Warn()
	}
	if requestID := requestIDFromContext(ctx); requestID != "" {
		ev = ev.Str("request_id", requestID)
	}
	ev.Str("op", op).Err(err).Msg("goguard operation failed")
}

func (e *Engine) logLockout(ctx context.Context, accountID string, until time.Time) {
	ev := e.log.Warn().Str("account_id", accountID).Time("lockout_until", until)
	if requestID := requestIDFromContext(ctx); requestID != "" {
		ev = ev.Str("request_id", requestID)
	}
	ev.Msg("account locked after consecutive failed logins")
}

func isRateLimited(err error) bool {
	return errors.Is(err, limiters.ErrResetRateLimited) || errors.Is(err, limiters.ErrLoginRateLimited)
}

func (e *Engine) initFlowDeps() {
	metric := func(id int) { e.metricInc(MetricID(id)) }
	observe := func(id int, d time.Duration) { e.metricObserve(MetricID(id), d) }

	e.flowDeps = flows.Deps{
		Recovery: flows.RecoveryDeps{
			ResponseFloor:       e.config.Recovery.ResponseFloor,
			MaxIdentifierLength: MaxIdentifierLength,
			Now:                 e.now,
			Sleep:               func(ctx context.Context, d time.Duration) error { return e.sleep(ctx, d) },
			Normalize:           internal.NormalizeIdentifier,
			Digest:              e.digest,
			CheckRequestLimiter: e.recoveryLimiter.CheckRequest,
			CheckConfirmLimiter: e.recoveryLimiter.CheckConfirm,
			IsRateLimited:       isRateLimited,
			GetAccount: func(ctx context.Context, identifier string) (flows.RecoveryAccount, error) {
				account, err := e.store.Accounts().GetByIdentifier(ctx, identifier)
				if err != nil {
					return flows.RecoveryAccount{}, err
				}
				return recoveryAccount(account), nil
			},
			IssueToken: e.tokens.issue,
			Notify: func(ctx context.Context, account flows.RecoveryAccount, raw string, expiresAt time.Time) error {
				if e.notifier == nil {
					return nil
				}
				return e.notifier.Send(ctx, Message{
					AccountID: account.ID,
					To:        account.Email,
					ResetURL:  e.resetURL(raw),
					ExpiresAt: expiresAt,
				})
			},
			DecodeToken:      internal.DecodeResetToken,
			LookupToken:      e.tokens.lookup,
			ValidatePassword: e.policy.Validate,
			HashPassword:     e.passwordHash.Hash,
			WithinTx: func(ctx context.Context, fn func(context.Context, flows.ResetTx) error) error {
				return e.store.WithinTx(ctx, func(ctx context.Context, tx StoreTx) error {
					return fn(ctx, resetTx{tx: tx})
				})
			},
			LogFailure: e.logFailure,
			MetricInc:  metric,
			Observe:    observe,
			EmitAudit:  e.emitAudit,
			Metrics: flows.RecoveryMetrics{
				Request:          int(MetricResetRequest),
				RequestThrottled: int(MetricResetRequestThrottled),
				TokenIssued:      int(MetricResetTokenIssued),
				NotifyFailure:    int(MetricResetNotifyFailure),
				ConfirmSuccess:   int(MetricResetConfirmSuccess),
				ConfirmFailure:   int(MetricResetConfirmFailure),
				Persistence:      int(MetricPersistenceFailure),
				RequestLatency:   int(MetricResetRequestLatency),
				ConfirmLatency:   int(MetricResetConfirmLatency),
			},
			Events: flows.RecoveryEvents{
				Request: auditActionResetRequest,
				Confirm: auditActionResetConfirm,
			},
			Errors: flows.RecoveryErrors{
				EngineNotReady:  ErrEngineNotReady,
				Validation:      ErrValidation,
				Throttled:       ErrThrottled,
				InvalidToken:    ErrInvalidToken,
				Persistence:     ErrPersistence,
				AccountNotFound: ErrAccountNotFound,
				TokenNotFound:   ErrTokenNotFound,
			},
		},
		Login: flows.LoginDeps{
			Threshold:         e.config.Lockout.Threshold,
			LockoutDuration:   e.config.Lockout.Duration,
			ExtendWhileLocked: e.config.Lockout.ExtendWhileLocked,
			ResponseFloor:     e.config.Login.ResponseFloor,
			Now:               e.now,
			Sleep:             func(ctx context.Context, d time.Duration) error { return e.sleep(ctx, d) },
			Normalize:         internal.NormalizeIdentifier,
			Digest:            e.digest,
			CheckAttempt:      e.loginLimiter.CheckAttempt,
			IsRateLimited:     isRateLimited,
			GetAccount: func(ctx context.Context, identifier string) (flows.LoginAccount, error) {
				account, err := e.store.Accounts().GetByIdentifier(ctx, identifier)
				if err != nil {
					return flows.LoginAccount{}, err
				}
				return loginAccount(account), nil
			},
			VerifyPassword: e.passwordHash.Verify,
			VerifyDecoy: func(pw string) {
				_ = e.passwordHash.VerifyDecoy(pw)
			},
			RehashPassword: e.rehashPassword,
			WithinTx: func(ctx context.Context, fn func(context.Context, flows.LoginTx) error) error {
				return e.store.WithinTx(ctx, func(ctx context.Context, tx StoreTx) error {
					return fn(ctx, loginTx{tx: tx})
				})
			},
			IssueSession: e.issueSession,
			LogFailure:   e.logFailure,
			LogLockout:   e.logLockout,
			MetricInc:    metric,
			Observe:      observe,
			EmitAudit:    e.emitAudit,
			Metrics: flows.LoginMetrics{
				Success:          int(MetricLoginSuccess),
				Failure:          int(MetricLoginFailure),
				Locked:           int(MetricLoginLocked),
				LockoutTriggered: int(MetricLoginLockoutTriggered),
				Throttled:        int(MetricLoginThrottled),
				Persistence:      int(MetricPersistenceFailure),
				Latency:          int(MetricLoginLatency),
			},
			Events: flows.LoginEvents{
				Login:   auditActionLogin,
				Lockout: auditActionLoginLockout,
			},
			Errors: flows.LoginErrors{
				EngineNotReady:     ErrEngineNotReady,
				Validation:         ErrValidation,
				Throttled:          ErrThrottled,
				InvalidCredentials: ErrInvalidCredentials,
				AccountLocked:      ErrAccountLocked,
				Persistence:        ErrPersistence,
				AccountNotFound:    ErrAccountNotFound,
			},
		},
	}
}

func (e *Engine) issueSession(_ context.Context, accountID string) (flows.LoginSession, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return flows.LoginSession{}, err
	}
	session := flows.LoginSession{SessionID: sid.String()}
	if e.jwtManager == nil {
		session.ExpiresAt = e.now().Add(e.config.Session.TTL)
		return session, nil
	}
	token, expiresAt, err := e.jwtManager.CreateSession(accountID, session.SessionID)
	if err != nil {
		return flows.LoginSession{}, err
	}
	session.Token = token
	session.ExpiresAt = expiresAt
	return session, nil
}

func recoveryAccount(a Account) flows.RecoveryAccount {
	return flows.RecoveryAccount{ID: a.ID, Email: a.Email, Active: a.Active}
}

func loginAccount(a Account) flows.LoginAccount {
	return flows.LoginAccount{
		ID:             a.ID,
		Email:          a.Email,
		PasswordHash:   a.PasswordHash,
		Active:         a.Active,
		FailedAttempts: a.FailedAttempts,
		LockoutUntil:   a.LockoutUntil,
	}
}

type resetTx struct{ tx StoreTx }

func (r resetTx) ConsumeToken(ctx context.Context, hash [32]byte, now time.Time) (string, error) {
	return r.tx.Tokens().ConsumeToken(ctx, hash, now)
}

func (r resetTx) GetAccount(ctx context.Context, accountID string) (flows.RecoveryAccount, error) {
	account, err := r.tx.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return flows.RecoveryAccount{}, err
	}
	return recoveryAccount(account), nil
}

func (r resetTx) UpdatePasswordHash(ctx context.Context, accountID, hash string) error {
	return r.tx.Accounts().UpdatePasswordHash(ctx, accountID, hash)
}

func (r resetTx) ClearLoginState(ctx context.Context, accountID string) error {
	return r.tx.Accounts().UpdateLoginState(ctx, accountID, 0, time.Time{})
}

type loginTx struct{ tx StoreTx }

func (l loginTx) GetAccount(ctx context.Context, accountID string) (flows.LoginAccount, error) {
	account, err := l.tx.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return flows.LoginAccount{}, err
	}
	return loginAccount(account), nil
}

func (l loginTx) UpdatePasswordHash(ctx context.Context, accountID, encodedHash string) error {
	return l.tx.Accounts().UpdatePasswordHash(ctx, accountID, encodedHash)
}

func (l loginTx) UpdateLoginState(ctx context.Context, accountID string, failedAttempts int, lockoutUntil time.Time) error {
	return l.tx.Accounts().UpdateLoginState(ctx, accountID, failedAttempts, lockoutUntil)
}

// rehashPassword moves a verified password onto the configured argon2 cost.
// Failures keep the old hash; the login itself already succeeded.
func (e *Engine) rehashPassword(pw, encoded string) string {
	needs, err := e.passwordHash.NeedsUpgrade(encoded)
	if err != nil || !needs {
		return ""
	}
	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		return ""
	}
	return hash
}
