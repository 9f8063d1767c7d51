package goGuard

import "errors"

var (
	// ErrValidation is an exported constant or variable used by the authentication engine.
	ErrValidation = errors.New("validation failed")
	// ErrThrottled is an exported constant or variable used by the authentication engine.
	ErrThrottled = errors.New("too many attempts")
	// ErrInvalidToken is an exported constant or variable used by the authentication engine.
	ErrInvalidToken = errors.New("reset token invalid or expired")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is only ever returned wrapped under [ErrInvalidCredentials].
	ErrAccountLocked = errors.New("account locked")
	// ErrPersistence is an exported constant or variable used by the authentication engine.
	ErrPersistence = errors.New("persistence failure")
	// ErrAccountNotFound is returned by [AccountStore] implementations.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTokenNotFound is returned by [TokenStore] implementations for
	// missing, used or expired tokens.
	ErrTokenNotFound = errors.New("reset token not found")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrAuditUnavailable is an exported constant or variable used by the authentication engine.
	ErrAuditUnavailable = errors.New("audit sink unavailable")
	// ErrSessionInvalid is an exported constant or variable used by the authentication engine.
	ErrSessionInvalid = errors.New("session grant invalid")
)
