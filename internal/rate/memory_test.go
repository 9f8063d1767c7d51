package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_ConcurrentAllowAdmitsExactlyMax(t *testing.T) {
	counter := NewMemory(0)

	const workers = 64
	const max = 5

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := counter.Allow(context.Background(), "burst", time.Minute, max); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != max {
		t.Fatalf("expected exactly %d admitted attempts, got %d", max, got)
	}
}

func TestMemory_WindowSlides(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	counter := NewMemory(time.Minute).WithClock(clock.Now)
	ctx := context.Background()

	if ok, _ := counter.Allow(ctx, "k", 5*time.Second, 1); !ok {
		t.Fatal("first attempt should be allowed")
	}
	clock.Advance(4 * time.Second)
	if ok, _ := counter.Allow(ctx, "k", 5*time.Second, 1); ok {
		t.Fatal("second attempt inside window should be denied")
	}
	clock.Advance(2 * time.Second)
	if ok, _ := counter.Allow(ctx, "k", 5*time.Second, 1); !ok {
		t.Fatal("attempt after window should be allowed")
	}
}

func TestMemory_RecordAndCount(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	counter := NewMemory(time.Minute).WithClock(clock.Now)
	ctx := context.Background()

	_ = counter.Record(ctx, "k")
	clock.Advance(time.Second)
	_ = counter.Record(ctx, "k")

	n, _ := counter.Count(ctx, "k", time.Minute)
	if n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}

	clock.Advance(2 * time.Minute)
	n, _ = counter.Count(ctx, "k", time.Minute)
	if n != 0 {
		t.Fatalf("expected attempts to age out, got %d", n)
	}
}
