//go:build integration
// +build integration

package test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/store/redisstore"
)

const (
	alicePassword = "correct-horse-battery-42"
	newPassword   = "another-long-passphrase-7"
)

type integration struct {
	engine *goGuard.Engine
	store  *redisstore.Store
	client *redis.Client
	mr     *miniredis.Miniredis
	inbox  *inbox
}

type inbox struct {
	mu   sync.Mutex
	msgs []goGuard.Message
}

func (i *inbox) Send(_ context.Context, msg goGuard.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
	return nil
}

func (i *inbox) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

// lastToken extracts the raw token from the most recent reset link.
func (i *inbox) lastToken(t *testing.T) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.msgs) == 0 {
		t.Fatal("no reset message delivered")
	}
	u, err := url.Parse(i.msgs[len(i.msgs)-1].ResetURL)
	if err != nil {
		t.Fatalf("parse reset url: %v", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("reset url has no token: %s", u)
	}
	return token
}

func integrationConfig() goGuard.Config {
	cfg := goGuard.DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Recovery.ResponseFloor = 200 * time.Millisecond
	cfg.Recovery.ResetURLBase = "https://app.example.com/reset"
	cfg.Security.IdentityDigestKey = []byte("integration-digest-key-0123456789")
	cfg.Metrics.Enabled = true
	return cfg
}

func newIntegration(t *testing.T, mutate func(*goGuard.Config), hooks ...redis.Hook) *integration {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	for _, h := range hooks {
		client.AddHook(h)
	}
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	cfg := integrationConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := redisstore.New(client, redisstore.Config{Prefix: "it:"})
	hasher, err := password.NewArgon2(password.Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	hash, err := hasher.Hash(alicePassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	ctx := context.Background()
	for _, a := range []goGuard.Account{
		{ID: "acct-alice", Email: "alice@example.com", PasswordHash: hash, Active: true},
		{ID: "acct-carol", Email: "carol@example.com", PasswordHash: hash, Active: false},
	} {
		if err := store.PutAccount(ctx, a); err != nil {
			t.Fatalf("PutAccount: %v", err)
		}
	}

	box := &inbox{}
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		WithNotifier(box).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &integration{engine: engine, store: store, client: client, mr: mr, inbox: box}
}

func (it *integration) account(t *testing.T, id string) goGuard.Account {
	t.Helper()
	a, err := it.store.Accounts().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return a
}
