package goGuard

import (
	"context"
	"time"
)

// Account is the credential view of an account record. Identity (email) and
// the password hash belong to the external account system; the lockout fields
// are owned by the login guard.
type Account struct {
	ID             string
	Email          string
	PasswordHash   string
	Active         bool
	FailedAttempts int
	LockoutUntil   time.Time
}

// Locked reports whether a lockout window covers now.
func (a Account) Locked(now time.Time) bool {
	return !a.LockoutUntil.IsZero() && a.LockoutUntil.After(now)
}

// TokenRecord is a persisted reset token. Only the SHA-256 of the raw token is
// stored.
type TokenRecord struct {
	ID        string
	AccountID string
	Hash      [32]byte
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Consumable reports whether the token can still be redeemed at now.
func (r TokenRecord) Consumable(now time.Time) bool {
	return !r.Used && r.ExpiresAt.After(now)
}

// AccountStore reads identities and writes credential state.
//
// GetByIdentifier receives a normalized (trimmed, lowercased) identifier and
// returns [ErrAccountNotFound] when nothing matches.
type AccountStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (Account, error)
	GetByID(ctx context.Context, accountID string) (Account, error)
	UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error
	UpdateLoginState(ctx context.Context, accountID string, failedAttempts int, lockoutUntil time.Time) error
}

// TokenStore persists reset tokens keyed by hash.
//
// ReplaceToken marks every unused token of record.AccountID used and inserts
// record, atomically. ConsumeToken flips one token from unused to used when
// it has not expired at now and returns its account id; otherwise it returns
// [ErrTokenNotFound].
type TokenStore interface {
	ReplaceToken(ctx context.Context, record TokenRecord) error
	FindToken(ctx context.Context, hash [32]byte) (TokenRecord, error)
	ConsumeToken(ctx context.Context, hash [32]byte, now time.Time) (string, error)
}

// StoreTx is the view of a [Store] inside one transaction.
type StoreTx interface {
	Accounts() AccountStore
	Tokens() TokenStore
}

// Store groups account and token persistence behind one transaction
// boundary. WithinTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	StoreTx
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error
}

// Message is a password reset notification.
type Message struct {
	AccountID string
	To        string
	ResetURL  string
	ExpiresAt time.Time
}

// Notifier hands a reset link to a delivery channel. Send should return once
// the message is accepted for delivery; the engine never waits on delivery.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// AttemptCounter is a sliding-window attempt counter. Allow records the
// attempt in the same atomic step in which it admits it.
type AttemptCounter interface {
	Allow(ctx context.Context, identity string, window time.Duration, max int) (bool, error)
	Record(ctx context.Context, identity string) error
}

// AuthResult is returned by [Engine.Authenticate] on success.
type AuthResult struct {
	AccountID    string
	Outcome      string
	SessionID    string
	SessionToken string
	ExpiresAt    time.Time
}

// SessionInfo is the verified content of a session grant.
type SessionInfo struct {
	AccountID string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
