package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// RequestReset handles a forgot-password submission for identifier.
//
// A nil error means "if the account exists, a link was sent"; callers must
// render the same response for known, unknown and inactive identifiers.
// Every such outcome takes at least Recovery.ResponseFloor. RequestReset
// returns [ErrValidation] for empty or oversized identifiers, [ErrThrottled]
// when a per-IP or per-identifier budget is spent, and [ErrPersistence] when
// the store or counter fails. Delivery failures are logged and audited but
// never surfaced.
func (e *Engine) RequestReset(ctx context.Context, identifier, callerIP string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunRequestReset(ctx, identifier, callerIP, e.flowDeps.Recovery)
}

// ConfirmReset redeems token and replaces the account's password with
// newPassword. The caller IP is read from ctx (see [WithClientIP]) for the
// confirmation throttle.
//
// Consuming the token, writing the new hash and clearing the lockout state
// happen in one store transaction. ConfirmReset returns [ErrValidation]
// wrapping [password.ErrPolicy] for weak passwords, [ErrInvalidToken] for
// unknown, used or expired tokens, [ErrThrottled] and [ErrPersistence].
func (e *Engine) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	_, err := flows.RunConfirmReset(ctx, token, newPassword, clientIPFromContext(ctx), e.flowDeps.Recovery)
	return err
}
