package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/store/redisstore"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 10000, "number of accounts and reset tokens to seed")
		identities  = flag.Int("identities", 2000, "distinct throttle identities")
		budget      = flag.Int("budget", 5, "attempts admitted per identity and window")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gglt:", "key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *identities <= 0 || *budget <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, identities, budget, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	counter := rate.NewSliding(client, rate.SlidingConfig{Prefix: *prefix + "att:"})
	store := redisstore.New(client, redisstore.Config{Prefix: *prefix})

	fmt.Printf("seeding %d accounts and tokens...\n", *accounts)
	startSeed := time.Now()
	hashes, err := seed(ctx, store, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	throttleStats, overBudget := runThrottlePhase(ctx, counter, *identities, *budget, *ops, *concurrency)
	consumeStats, doubleSpent := runConsumePhase(ctx, store, hashes, *ops, *concurrency)
	lockoutStats, lost := runLockoutPhase(ctx, store, *accounts, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("throttle", throttleStats)
	printStats("consume", consumeStats)
	printStats("lockout", lockoutStats)

	failed := false
	if overBudget > 0 {
		fmt.Printf("FAIL: %d identities admitted more than %d attempts\n", overBudget, *budget)
		failed = true
	}
	if doubleSpent > 0 {
		fmt.Printf("FAIL: %d tokens consumed more than once\n", doubleSpent)
		failed = true
	}
	if lost > 0 {
		fmt.Printf("FAIL: %d committed failure increments were lost\n", lost)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

func seed(ctx context.Context, store *redisstore.Store, n int) ([][32]byte, error) {
	now := time.Now()
	hashes := make([][32]byte, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("acct-%d", i)
		if err := store.PutAccount(ctx, goGuard.Account{ID: id, Email: fmt.Sprintf("user%d@loadtest.invalid", i), Active: true}); err != nil {
			return nil, err
		}
		hashes[i] = sha256.Sum256([]byte(fmt.Sprintf("raw-token-%d", i)))
		err := store.Tokens().ReplaceToken(ctx, goGuard.TokenRecord{
			ID:        fmt.Sprintf("tok-%d", i),
			AccountID: id,
			Hash:      hashes[i],
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		})
		if err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

// runThrottlePhase reports how many identities were admitted beyond budget.
func runThrottlePhase(ctx context.Context, counter *rate.Sliding, identities, budget, ops, concurrency int) (phaseStats, int) {
	admitted := make([]int64, identities)
	stats := runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		idx := r.Intn(identities)
		ok, err := counter.Allow(ctx, fmt.Sprintf("ip:%d", idx), time.Hour, budget)
		if err != nil {
			return err
		}
		if ok {
			atomic.AddInt64(&admitted[idx], 1)
		}
		return nil
	})
	over := 0
	for _, n := range admitted {
		if n > int64(budget) {
			over++
		}
	}
	return stats, over
}

// runConsumePhase reports tokens that more than one caller consumed.
func runConsumePhase(ctx context.Context, store *redisstore.Store, hashes [][32]byte, ops, concurrency int) (phaseStats, int) {
	wins := make([]int64, len(hashes))
	stats := runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) error {
		idx := r.Intn(len(hashes))
		_, err := store.Tokens().ConsumeToken(ctx, hashes[idx], time.Now())
		switch {
		case err == nil:
			atomic.AddInt64(&wins[idx], 1)
			return nil
		case errors.Is(err, goGuard.ErrTokenNotFound):
			return nil
		default:
			return err
		}
	})
	double := 0
	for _, n := range wins {
		if n > 1 {
			double++
		}
	}
	return stats, double
}

// runLockoutPhase increments failure counters inside transactions and
// reports committed increments that are missing from the final state.
func runLockoutPhase(ctx context.Context, store *redisstore.Store, accounts, ops, concurrency int) (phaseStats, int64) {
	committed := make([]int64, accounts)
	stats := runPhase(ops, concurrency, 104729, func(r *rand.Rand, _ int) error {
		idx := r.Intn(accounts)
		id := fmt.Sprintf("acct-%d", idx)
		err := store.WithinTx(ctx, func(ctx context.Context, tx goGuard.StoreTx) error {
			acct, err := tx.Accounts().GetByID(ctx, id)
			if err != nil {
				return err
			}
			return tx.Accounts().UpdateLoginState(ctx, id, acct.FailedAttempts+1, acct.LockoutUntil)
		})
		if err == nil {
			atomic.AddInt64(&committed[idx], 1)
		}
		return err
	})

	var lost int64
	for i := 0; i < accounts; i++ {
		acct, err := store.Accounts().GetByID(ctx, fmt.Sprintf("acct-%d", i))
		if err != nil {
			lost += committed[i]
			continue
		}
		if diff := committed[i] - int64(acct.FailedAttempts); diff > 0 {
			lost += diff
		}
	}
	return stats, lost
}

func runPhase(ops, concurrency int, seedStep int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedStep))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

// failures counts store conflicts and Redis errors, not throttle denials or
// already-used tokens.
func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
