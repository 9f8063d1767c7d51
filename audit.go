package goGuard

import (
	"io"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
)

// AuditEvent is one security-relevant decision. It carries digests of the
// identifier and caller IP, never the raw values.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events. Implementations must be safe for
// concurrent use.
type AuditSink = internalaudit.Sink

// AuditSeverity ranks audit events.
type AuditSeverity = internalaudit.Severity

const (
	// AuditSeverityInfo is an exported constant or variable used by the authentication engine.
	AuditSeverityInfo = internalaudit.SeverityInfo
	// AuditSeverityHigh is an exported constant or variable used by the authentication engine.
	AuditSeverityHigh = internalaudit.SeverityHigh
)

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// MultiSink fans an event out to several sinks in order.
type MultiSink = internalaudit.MultiSink

// NewChannelSink returns a sink that buffers events in a channel.
func NewChannelSink(buffer int) *internalaudit.ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event.
func NewJSONWriterSink(w io.Writer) *internalaudit.JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLineSink appends "timestamp | identity_digest | action | outcome" lines
// to w, for example an append-only file.
func NewLineSink(w io.Writer) *internalaudit.LineSink {
	return internalaudit.NewLineSink(w)
}

// NewZerologSink logs events through log; high severity events log at warn.
func NewZerologSink(log zerolog.Logger) *internalaudit.ZerologSink {
	return internalaudit.NewZerologSink(log)
}

// NewKafkaSink publishes events as JSON to topic, keyed by identity digest.
// Close the returned sink after the engine is closed.
func NewKafkaSink(producer sarama.AsyncProducer, topic string, log zerolog.Logger) *internalaudit.KafkaSink {
	return internalaudit.NewKafkaSink(producer, topic, log)
}

// NewKafkaProducer builds the async producer used by [NewKafkaSink].
func NewKafkaProducer(brokers []string) (sarama.AsyncProducer, error) {
	return internalaudit.NewKafkaProducer(brokers)
}
