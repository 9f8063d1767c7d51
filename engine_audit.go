package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/password"
)

const (
	auditActionResetRequest = "reset_request"
	auditActionResetConfirm = "reset_confirm"
	auditActionLogin        = "login"
	auditActionLoginLockout = "login_lockout"
)

// AuditErrorCode is the stable error tag stored on audit events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrThrottled          AuditErrorCode = "throttled"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(ctx context.Context, record flows.AuditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	severity := AuditSeverityInfo
	if record.High {
		severity = AuditSeverityHigh
	}
	event := AuditEvent{
		Timestamp:      e.now().UTC(),
		Action:         record.Action,
		Outcome:        record.Outcome,
		IdentityDigest: record.IdentityDigest,
		IPDigest:       record.IPDigest,
		AccountID:      record.AccountID,
		RequestID:      requestIDFromContext(ctx),
		Severity:       severity,
		Metadata:       record.Metadata,
	}
	if code := auditErrorCode(record.Err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, password.ErrPolicy):
		return auditErrValidation
	case errors.Is(err, ErrThrottled):
		return auditErrThrottled
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrPersistence):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
