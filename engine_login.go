package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// Authenticate checks identifier and password and, on success, resets the
// failure counter and issues a session grant.
//
// Failures for a wrong password, an unknown or inactive identifier and a
// locked account all return an error matching [ErrInvalidCredentials]; the
// locked case additionally matches [ErrAccountLocked]. After
// Lockout.Threshold consecutive failures the account is locked for
// Lockout.Duration, during which even the correct password is rejected.
// Authenticate returns [ErrThrottled] when the caller IP exhausted its budget
// and [ErrPersistence] when the store fails.
func (e *Engine) Authenticate(ctx context.Context, identifier, password, callerIP string) (AuthResult, error) {
	if e == nil {
		return AuthResult{}, ErrEngineNotReady
	}
	res, err := flows.RunAuthenticate(ctx, identifier, password, callerIP, e.flowDeps.Login)
	if err != nil {
		return AuthResult{AccountID: res.AccountID, Outcome: res.Outcome}, err
	}
	return AuthResult{
		AccountID:    res.AccountID,
		Outcome:      res.Outcome,
		SessionID:    res.Session.SessionID,
		SessionToken: res.Session.Token,
		ExpiresAt:    res.Session.ExpiresAt,
	}, nil
}
