package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func sampleEvent() Event {
	return Event{
		Timestamp:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Action:         "reset_request",
		Outcome:        "unknown_identity",
		IdentityDigest: "abc123",
		Severity:       SeverityInfo,
	}
}

func TestEventLineFormat(t *testing.T) {
	got := sampleEvent().Line()
	want := "2026-03-01T10:00:00Z | abc123 | reset_request | unknown_identity"
	if got != want {
		t.Fatalf("unexpected line\n got: %q\nwant: %q", got, want)
	}

	ev := sampleEvent()
	ev.IdentityDigest = ""
	if !strings.Contains(ev.Line(), " | - | ") {
		t.Fatalf("expected placeholder digest, got %q", ev.Line())
	}
}

func TestLineSinkAppends(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLineSink(&buf)

	sink.Emit(context.Background(), sampleEvent())
	ev := sampleEvent()
	ev.Outcome = "token_issued"
	sink.Emit(context.Background(), ev)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[1], "| token_issued") {
		t.Fatalf("unexpected second line: %q", lines[1])
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	NewJSONWriterSink(&buf).Emit(context.Background(), sampleEvent())

	var decoded Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Action != "reset_request" || decoded.IdentityDigest != "abc123" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestZerologSinkSeverity(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf))

	ev := sampleEvent()
	ev.Severity = SeverityHigh
	ev.Metadata = map[string]string{"reason": "threshold"}
	sink.Emit(context.Background(), ev)

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected warn level for high severity, got %s", out)
	}
	if !strings.Contains(out, `"reason":"threshold"`) {
		t.Fatalf("expected metadata in output, got %s", out)
	}
}

func TestMultiSinkFanOut(t *testing.T) {
	a := NewChannelSink(1)
	b := NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), sampleEvent())

	for _, s := range []*ChannelSink{a, b} {
		select {
		case <-s.Events():
		default:
			t.Fatal("expected event in every sink")
		}
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type blockingSink struct {
	gate chan struct{}
}

func (s *blockingSink) Emit(context.Context, Event) { <-s.gate }

func TestDispatcherFlushesOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), sampleEvent())
	}
	d.Close()

	if got := sink.Len(); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
	d.Emit(context.Background(), sampleEvent())
	if got := sink.Len(); got != 10 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), sampleEvent())
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events when buffer is full")
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), sampleEvent())
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}
