package goGuard

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
)

type gateSink struct {
	gate chan struct{}
	once sync.Once
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func (s *gateSink) open() {
	s.once.Do(func() { close(s.gate) })
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Audit.Enabled = false
	})

	if err := h.engine.RequestReset(context.Background(), "alice@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if n := len(h.audit.all()); n != 0 {
		t.Fatalf("expected no audit events, got %d", n)
	}
}

func TestAuditRequiredWithoutSinkFailsBuild(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Required = true

	_, err := New().WithConfig(cfg).WithStore(newMemStore()).Build()
	if err != ErrAuditUnavailable {
		t.Fatalf("expected ErrAuditUnavailable, got %v", err)
	}
}

func TestAuditAsyncDeliversOnClose(t *testing.T) {
	sink := &recordingSink{}
	h := newHarnessWithSink(t, func(cfg *Config) {
		cfg.Audit.Async = true
		cfg.Audit.BufferSize = 16
	}, sink)

	for _, identifier := range []string{"alice@example.com", "ghost@example.com"} {
		if err := h.engine.RequestReset(context.Background(), identifier, "203.0.113.9"); err != nil {
			t.Fatalf("request: %v", err)
		}
	}
	h.engine.Close()

	if n := len(sink.all()); n != 2 {
		t.Fatalf("expected 2 delivered events, got %d", n)
	}
}

func TestAuditBufferFullDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	h := newHarnessWithSink(t, func(cfg *Config) {
		cfg.Audit.Async = true
		cfg.Audit.BufferSize = 1
		cfg.Audit.DropIfFull = true
		cfg.Metrics.Enabled = true
	}, sink)
	t.Cleanup(sink.open)

	for i := 0; i < 4; i++ {
		if _, err := h.engine.Authenticate(context.Background(), "ghost@example.com", "whatever-pass", "198.51.100.1"); err == nil {
			t.Fatal("expected failure")
		}
	}

	if h.engine.AuditDropped() == 0 {
		t.Fatal("expected dropped audit events")
	}
	if h.engine.MetricsSnapshot().Counters[MetricAuditDropped] == 0 {
		t.Fatal("expected audit_dropped metric")
	}
	sink.open()
}

func TestAuditLineSinkFormat(t *testing.T) {
	var buf syncBuffer
	h := newHarnessWithSink(t, nil, NewLineSink(&buf))

	if err := h.engine.RequestReset(context.Background(), "ghost@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("request: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	parts := strings.Split(line, " | ")
	if len(parts) != 4 {
		t.Fatalf("expected 4 fields, got %q", line)
	}
	if parts[1] != h.engine.digest("ghost@example.com") {
		t.Fatalf("expected identity digest, got %q", parts[1])
	}
	if parts[2] != "reset_request" || parts[3] != "unknown_identity" {
		t.Fatalf("unexpected action/outcome in %q", line)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	var buf syncBuffer
	h := newHarnessWithSink(t, nil, NewJSONWriterSink(&buf))

	ctx := WithClientIP(context.Background(), "203.0.113.77")
	if err := h.engine.RequestReset(ctx, "alice@example.com", "203.0.113.77"); err != nil {
		t.Fatalf("request: %v", err)
	}
	sent := h.notifier.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	raw := strings.TrimPrefix(sent[0].ResetURL, "https://app.example.com/reset?token=")

	const newPassword = "a-brand-new-passphrase"
	if err := h.engine.ConfirmReset(ctx, raw, newPassword); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "alice@example.com", alicePassword, "203.0.113.77"); err == nil {
		t.Fatal("old password should fail")
	}

	out := buf.String()
	for _, secret := range []string{raw, newPassword, alicePassword, "alice@example.com", "203.0.113.77"} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaks %q", secret)
		}
	}
}
