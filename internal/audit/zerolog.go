package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologSink writes audit events as structured log records.
// High-severity events are logged at warn level.
type ZerologSink struct {
	log zerolog.Logger
}

func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *ZerologSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	entry := s.log.Info()
	if event.Severity == SeverityHigh {
		entry = s.log.Warn()
	}
	entry = entry.
		Time("at", event.Timestamp).
		Str("action", event.Action).
		Str("outcome", event.Outcome).
		Str("identity_digest", event.IdentityDigest).
		Str("severity", string(event.Severity))
	if event.AccountID != "" {
		entry = entry.Str("account_id", event.AccountID)
	}
	if event.RequestID != "" {
		entry = entry.Str("request_id", event.RequestID)
	}
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	if len(event.Metadata) > 0 {
		dict := zerolog.Dict()
		for k, v := range event.Metadata {
			dict = dict.Str(k, v)
		}
		entry = entry.Dict("metadata", dict)
	}
	entry.Msg("audit event")
}
