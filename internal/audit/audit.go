package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Severity ranks audit events for alerting.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityHigh Severity = "high"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
// It never carries a raw identifier, IP or token; only digests.
type Event struct {
	Timestamp      time.Time         `json:"timestamp"`
	Action         string            `json:"action"`
	Outcome        string            `json:"outcome"`
	IdentityDigest string            `json:"identity_digest,omitempty"`
	IPDigest       string            `json:"ip_digest,omitempty"`
	AccountID      string            `json:"account_id,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
	Severity       Severity          `json:"severity"`
	Error          string            `json:"error,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Line renders the event in the append-only log line format
// "timestamp | identity_digest | action | outcome".
func (e Event) Line() string {
	digest := e.IdentityDigest
	if digest == "" {
		digest = "-"
	}
	return fmt.Sprintf("%s | %s | %s | %s",
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		digest,
		e.Action,
		e.Outcome,
	)
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LineSink appends [Event.Line] records to a writer.
type LineSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{writer: w}
}

func (s *LineSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	var b strings.Builder
	b.WriteString(event.Line())
	b.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = io.WriteString(s.writer, b.String())
}

// MultiSink fans one event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
