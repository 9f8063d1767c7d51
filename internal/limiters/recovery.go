package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/internal/rate"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset counter unavailable")
)

// Scope is one sliding-window budget.
type Scope struct {
	Enabled bool
	Window  time.Duration
	Max     int
}

type RecoveryConfig struct {
	RequestIP         Scope
	RequestIdentifier Scope
	ConfirmIP         Scope
}

// RecoveryLimiter throttles reset requests per caller IP and per identifier,
// and reset confirmations per caller IP. Keys are digests supplied by the caller.
type RecoveryLimiter struct {
	counter rate.Counter
	config  RecoveryConfig
}

func NewRecoveryLimiter(counter rate.Counter, cfg RecoveryConfig) *RecoveryLimiter {
	return &RecoveryLimiter{
		counter: counter,
		config:  cfg,
	}
}

// CheckRequest admits and records one reset request.
func (l *RecoveryLimiter) CheckRequest(ctx context.Context, identifierDigest, ipDigest string) error {
	if l == nil {
		return nil
	}
	if ipDigest != "" {
		if err := l.enforce(ctx, l.config.RequestIP, requestIPKey(ipDigest)); err != nil {
			return err
		}
	}
	if identifierDigest != "" {
		if err := l.enforce(ctx, l.config.RequestIdentifier, requestIdentifierKey(identifierDigest)); err != nil {
			return err
		}
	}
	return nil
}

// CheckConfirm admits and records one reset confirmation.
func (l *RecoveryLimiter) CheckConfirm(ctx context.Context, ipDigest string) error {
	if l == nil || ipDigest == "" {
		return nil
	}
	return l.enforce(ctx, l.config.ConfirmIP, confirmIPKey(ipDigest))
}

func (l *RecoveryLimiter) enforce(ctx context.Context, scope Scope, key string) error {
	if !scope.Enabled {
		return nil
	}
	ok, err := l.counter.Allow(ctx, key, scope.Window, scope.Max)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if !ok {
		return ErrResetRateLimited
	}
	return nil
}

func requestIdentifierKey(digest string) string {
	return "rri:" + digest
}

func requestIPKey(digest string) string {
	return "rrip:" + digest
}

func confirmIPKey(digest string) string {
	return "rcip:" + digest
}
