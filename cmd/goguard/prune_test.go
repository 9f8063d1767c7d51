package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goGuard/config"
)

type countingPruner struct {
	mu         sync.Mutex
	calls      int
	retentions []time.Duration
	err        error
	onCall     func(n int)
}

func (p *countingPruner) Prune(_ context.Context, retention time.Duration) (int64, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.retentions = append(p.retentions, retention)
	err := p.err
	p.mu.Unlock()
	if p.onCall != nil {
		p.onCall(n)
	}
	return 3, err
}

func (p *countingPruner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestRunPrunerRepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &countingPruner{err: errors.New("db down")}
	p.onCall = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		runPruner(ctx, p, time.Millisecond, 48*time.Hour, zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pruner did not stop after cancel")
	}
	if got := p.count(); got != 3 {
		t.Fatalf("expected failures to be retried until cancel, got %d calls", got)
	}
	for _, r := range p.retentions {
		if r != 48*time.Hour {
			t.Fatalf("unexpected retention %v", r)
		}
	}
}

func TestRunPrunerDisabledByZeroInterval(t *testing.T) {
	p := &countingPruner{}
	runPruner(context.Background(), p, 0, time.Hour, zerolog.Nop())
	if p.count() != 0 {
		t.Fatal("a zero interval must not prune")
	}
}

func TestPruneAttemptsReturnsError(t *testing.T) {
	boom := errors.New("db down")
	if err := pruneAttempts(context.Background(), &countingPruner{err: boom}, time.Hour, zerolog.Nop()); !errors.Is(err, boom) {
		t.Fatalf("expected prune error, got %v", err)
	}
}

func TestMigratePruneRequiresPostgres(t *testing.T) {
	s, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := migrate(s, false, true, zerolog.Nop()); err == nil {
		t.Fatal("expected prune without a postgres url to fail")
	}
}
