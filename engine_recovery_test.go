package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

func TestRequestReset_SameMessageAndFloorForUnknownIdentifier(t *testing.T) {
	h := newHarness(t, nil)
	floor := h.engine.Config().Recovery.ResponseFloor

	measure := func(identifier string) (time.Duration, error) {
		start := h.clock.Now()
		err := h.engine.RequestReset(context.Background(), identifier, "203.0.113.9")
		return h.clock.Now().Sub(start), err
	}

	knownElapsed, knownErr := measure("alice@example.com")
	unknownElapsed, unknownErr := measure("ghost@example.com")
	inactiveElapsed, inactiveErr := measure("carol@example.com")

	if knownErr != nil || unknownErr != nil || inactiveErr != nil {
		t.Fatalf("expected nil results, got %v / %v / %v", knownErr, unknownErr, inactiveErr)
	}
	for _, elapsed := range []time.Duration{knownElapsed, unknownElapsed, inactiveElapsed} {
		if elapsed < floor {
			t.Fatalf("expected at least %v, got %v", floor, elapsed)
		}
	}
	if knownElapsed != unknownElapsed || unknownElapsed != inactiveElapsed {
		t.Fatalf("timing differs: %v %v %v", knownElapsed, unknownElapsed, inactiveElapsed)
	}

	sent := h.notifier.sent()
	if len(sent) != 1 || sent[0].To != "alice@example.com" {
		t.Fatalf("expected one message to alice, got %+v", sent)
	}
	if !strings.HasPrefix(sent[0].ResetURL, "https://app.example.com/reset?token=") {
		t.Fatalf("unexpected reset url %q", sent[0].ResetURL)
	}

	events := h.audit.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}
	outcomes := []string{events[0].Outcome, events[1].Outcome, events[2].Outcome}
	want := []string{"token_issued", "unknown_identity", "inactive"}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcome %d: expected %s got %s", i, want[i], outcomes[i])
		}
	}
	for _, e := range events {
		if strings.Contains(e.IdentityDigest, "@") || e.IdentityDigest == "" {
			t.Fatalf("identity digest leaks or is empty: %q", e.IdentityDigest)
		}
	}
}

func TestRequestReset_NormalizesIdentifier(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.RequestReset(context.Background(), "  Alice@Example.COM ", "203.0.113.9"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(h.notifier.sent()) != 1 {
		t.Fatal("expected normalized identifier to resolve alice")
	}
}

func TestRequestReset_RejectsOversizedIdentifier(t *testing.T) {
	h := newHarness(t, nil)
	long := strings.Repeat("a", MaxIdentifierLength) + "@example.com"
	if err := h.engine.RequestReset(context.Background(), long, "203.0.113.9"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := h.engine.RequestReset(context.Background(), "   ", "203.0.113.9"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRequestReset_ThrottlesPerIP(t *testing.T) {
	h := newHarness(t, nil)
	max := h.engine.Config().Recovery.IPMax

	for i := 0; i < max; i++ {
		identifier := fmt.Sprintf("ghost%d@example.com", i)
		if err := h.engine.RequestReset(context.Background(), identifier, "203.0.113.9"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := h.engine.RequestReset(context.Background(), "alice@example.com", "203.0.113.9"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if len(h.notifier.sent()) != 0 {
		t.Fatal("throttled request must not reach the store")
	}
	if got := h.audit.last(t).Outcome; got != "throttled" {
		t.Fatalf("expected throttled audit, got %s", got)
	}
	if err := h.engine.RequestReset(context.Background(), "alice@example.com", "203.0.113.10"); err != nil {
		t.Fatalf("other ip should pass: %v", err)
	}
}

func TestRequestReset_NotifierFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.err = errors.New("smtp down")

	if err := h.engine.RequestReset(context.Background(), "alice@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	last := h.audit.last(t)
	if last.Metadata["delivery"] != "failed" {
		t.Fatalf("expected delivery=failed, got %+v", last.Metadata)
	}
}

func TestRequestReset_PersistenceFailureAfterFloor(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.store = failingStore{Store: h.store}
	h.engine.initFlowDeps()

	start := h.clock.Now()
	err := h.engine.RequestReset(context.Background(), "alice@example.com", "203.0.113.9")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if elapsed := h.clock.Now().Sub(start); elapsed < h.engine.Config().Recovery.ResponseFloor {
		t.Fatalf("error path returned early after %v", elapsed)
	}
}

func TestConfirmReset_ClearsLockoutState(t *testing.T) {
	h := newHarness(t, nil)
	locked := h.store.account(t, "acct-alice")
	locked.FailedAttempts = 5
	locked.LockoutUntil = h.clock.Now().Add(10 * time.Minute)
	h.store.put(locked)

	raw := h.resetTokenFor(t, "acct-alice")
	const newPassword = "a-brand-new-passphrase"
	if err := h.engine.ConfirmReset(context.Background(), raw, newPassword); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	account := h.store.account(t, "acct-alice")
	if account.FailedAttempts != 0 || !account.LockoutUntil.IsZero() {
		t.Fatalf("lockout not cleared: %+v", account)
	}
	if _, err := h.engine.Authenticate(context.Background(), "alice@example.com", newPassword, "198.51.100.1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := h.engine.Authenticate(context.Background(), "alice@example.com", alicePassword, "198.51.100.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must fail, got %v", err)
	}
}

func TestConfirmReset_TokenIsSingleUse(t *testing.T) {
	h := newHarness(t, nil)
	raw := h.resetTokenFor(t, "acct-alice")

	if err := h.engine.ConfirmReset(context.Background(), raw, "first-new-passphrase"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := h.engine.ConfirmReset(context.Background(), raw, "second-new-passphrase"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestConfirmReset_WeakPasswordKeepsToken(t *testing.T) {
	h := newHarness(t, nil)
	raw := h.resetTokenFor(t, "acct-alice")

	err := h.engine.ConfirmReset(context.Background(), raw, "short")
	if !errors.Is(err, ErrValidation) || !errors.Is(err, password.ErrPolicy) {
		t.Fatalf("expected policy validation error, got %v", err)
	}
	if _, ok := h.engine.Tokens().Validate(context.Background(), raw); !ok {
		t.Fatal("policy failure must not consume the token")
	}
	if got := h.audit.last(t).Outcome; got != "invalid_password" {
		t.Fatalf("expected invalid_password audit, got %s", got)
	}
}

func TestConfirmReset_RollsBackOnStoreFailure(t *testing.T) {
	h := newHarness(t, nil)
	raw := h.resetTokenFor(t, "acct-alice")
	before := h.store.account(t, "acct-alice").PasswordHash

	h.store.failTx = errStoreDown
	err := h.engine.ConfirmReset(context.Background(), raw, "a-brand-new-passphrase")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	h.store.failTx = nil

	if after := h.store.account(t, "acct-alice").PasswordHash; after != before {
		t.Fatal("password changed despite failed transaction")
	}
	if _, ok := h.engine.Tokens().Validate(context.Background(), raw); !ok {
		t.Fatal("token consumed despite failed transaction")
	}
}

func TestConfirmReset_ExpiredToken(t *testing.T) {
	h := newHarness(t, nil)
	raw := h.resetTokenFor(t, "acct-alice")
	h.clock.Advance(h.engine.Config().Recovery.TokenTTL + time.Second)

	if err := h.engine.ConfirmReset(context.Background(), raw, "a-brand-new-passphrase"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestConfirmReset_ThrottlesPerIP(t *testing.T) {
	h := newHarness(t, nil)
	ctx := WithClientIP(context.Background(), "203.0.113.50")
	max := h.engine.Config().Recovery.ConfirmIPMax

	for i := 0; i < max; i++ {
		if err := h.engine.ConfirmReset(ctx, "not-a-token", "a-brand-new-passphrase"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("attempt %d: expected ErrInvalidToken, got %v", i, err)
		}
	}
	if err := h.engine.ConfirmReset(ctx, "not-a-token", "a-brand-new-passphrase"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}

// failingStore fails every account lookup outside a transaction.
type failingStore struct {
	Store
}

func (f failingStore) Accounts() AccountStore { return failingAccounts{f.Store.Accounts()} }

type failingAccounts struct {
	AccountStore
}

func (failingAccounts) GetByIdentifier(context.Context, string) (Account, error) {
	return Account{}, errStoreDown
}
