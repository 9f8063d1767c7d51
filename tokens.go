package goGuard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGuard/internal"
)

// RecoveryTokens issues, checks and redeems single-use password reset
// tokens. Raw tokens leave this type only as return values of Issue; the
// store sees SHA-256 hashes.
type RecoveryTokens struct {
	store TokenStore
	ttl   time.Duration
	now   func() time.Time
}

func newRecoveryTokens(store TokenStore, ttl time.Duration, now func() time.Time) *RecoveryTokens {
	if now == nil {
		now = time.Now
	}
	return &RecoveryTokens{store: store, ttl: ttl, now: now}
}

// Issue creates a token for accountID and invalidates every earlier unused
// token of that account in the same store operation.
func (t *RecoveryTokens) Issue(ctx context.Context, accountID string) (string, error) {
	raw, _, err := t.issue(ctx, accountID)
	return raw, err
}

func (t *RecoveryTokens) issue(ctx context.Context, accountID string) (string, time.Time, error) {
	if t == nil || t.store == nil {
		return "", time.Time{}, ErrEngineNotReady
	}
	if accountID == "" {
		return "", time.Time{}, ErrValidation
	}

	raw, hash, err := internal.NewResetToken()
	if err != nil {
		return "", time.Time{}, err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, err
	}

	now := t.now()
	record := TokenRecord{
		ID:        id.String(),
		AccountID: accountID,
		Hash:      hash,
		CreatedAt: now,
		ExpiresAt: now.Add(t.ttl),
	}
	if err := t.store.ReplaceToken(ctx, record); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return raw, record.ExpiresAt, nil
}

// Validate reports the owning account when raw is known, unused and not
// expired. Malformed, unknown, used and expired tokens all return ok=false.
func (t *RecoveryTokens) Validate(ctx context.Context, raw string) (string, bool) {
	hash, err := internal.DecodeResetToken(raw)
	if err != nil {
		return "", false
	}
	accountID, ok, err := t.lookup(ctx, hash)
	if err != nil {
		return "", false
	}
	return accountID, ok
}

func (t *RecoveryTokens) lookup(ctx context.Context, hash [32]byte) (string, bool, error) {
	if t == nil || t.store == nil {
		return "", false, ErrEngineNotReady
	}
	record, err := t.store.FindToken(ctx, hash)
	if errors.Is(err, ErrTokenNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !record.Consumable(t.now()) {
		return "", false, nil
	}
	return record.AccountID, true, nil
}

// Consume marks raw used. It returns false when the token was already used,
// is unknown or has expired; exactly one of any number of concurrent calls
// for the same token returns true.
func (t *RecoveryTokens) Consume(ctx context.Context, raw string) (bool, error) {
	if t == nil || t.store == nil {
		return false, ErrEngineNotReady
	}
	hash, err := internal.DecodeResetToken(raw)
	if err != nil {
		return false, nil
	}
	if _, err := t.store.ConsumeToken(ctx, hash, t.now()); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return true, nil
}
