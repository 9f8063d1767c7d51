package limiters

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/internal/rate"
)

var (
	ErrLoginRateLimited      = errors.New("login rate limited")
	ErrLoginRedisUnavailable = errors.New("login counter unavailable")
)

// LoginLimiter records every login attempt against the caller IP, whether or
// not the identifier exists, so enumeration and brute force share one budget.
type LoginLimiter struct {
	counter rate.Counter
	scope   Scope
}

func NewLoginLimiter(counter rate.Counter, scope Scope) *LoginLimiter {
	return &LoginLimiter{counter: counter, scope: scope}
}

// CheckAttempt admits and records one login attempt for the caller IP.
func (l *LoginLimiter) CheckAttempt(ctx context.Context, ipDigest string) error {
	if l == nil || !l.scope.Enabled || ipDigest == "" {
		return nil
	}
	ok, err := l.counter.Allow(ctx, loginIPKey(ipDigest), l.scope.Window, l.scope.Max)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginRedisUnavailable, err)
	}
	if !ok {
		return ErrLoginRateLimited
	}
	return nil
}

func loginIPKey(digest string) string {
	return "lip:" + digest
}
