package goGuard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

const alicePassword = "correct-horse-battery-42"

type memState struct {
	accounts map[string]Account
	tokens   map[[32]byte]TokenRecord
}

func (s *memState) clone() *memState {
	out := &memState{
		accounts: make(map[string]Account, len(s.accounts)),
		tokens:   make(map[[32]byte]TokenRecord, len(s.tokens)),
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.tokens {
		out.tokens[k] = v
	}
	return out
}

// memView operates on a state without locking; callers hold the store lock.
type memView struct{ s *memState }

func (v memView) GetByIdentifier(_ context.Context, identifier string) (Account, error) {
	for _, a := range v.s.accounts {
		if a.Email == identifier {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (v memView) GetByID(_ context.Context, id string) (Account, error) {
	a, ok := v.s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (v memView) UpdatePasswordHash(_ context.Context, id, hash string) error {
	a, ok := v.s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	v.s.accounts[id] = a
	return nil
}

func (v memView) UpdateLoginState(_ context.Context, id string, failed int, until time.Time) error {
	a, ok := v.s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.FailedAttempts = failed
	a.LockoutUntil = until
	v.s.accounts[id] = a
	return nil
}

func (v memView) ReplaceToken(_ context.Context, record TokenRecord) error {
	for h, t := range v.s.tokens {
		if t.AccountID == record.AccountID && !t.Used {
			t.Used = true
			v.s.tokens[h] = t
		}
	}
	v.s.tokens[record.Hash] = record
	return nil
}

func (v memView) FindToken(_ context.Context, hash [32]byte) (TokenRecord, error) {
	t, ok := v.s.tokens[hash]
	if !ok {
		return TokenRecord{}, ErrTokenNotFound
	}
	return t, nil
}

func (v memView) ConsumeToken(_ context.Context, hash [32]byte, now time.Time) (string, error) {
	t, ok := v.s.tokens[hash]
	if !ok || !t.Consumable(now) {
		return "", ErrTokenNotFound
	}
	t.Used = true
	v.s.tokens[hash] = t
	return t.AccountID, nil
}

func (v memView) Accounts() AccountStore { return v }
func (v memView) Tokens() TokenStore     { return v }

// memStore is a serializable in-memory Store: every call and every
// transaction runs under one mutex, and transactions work on a copy that is
// swapped in on commit.
type memStore struct {
	mu      sync.Mutex
	state   *memState
	failTx  error
	txCalls int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		accounts: map[string]Account{},
		tokens:   map[[32]byte]TokenRecord{},
	}}
}

type lockedView struct{ m *memStore }

func (l lockedView) GetByIdentifier(ctx context.Context, identifier string) (Account, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memView{l.m.state}.GetByIdentifier(ctx, identifier)
}

func (l lockedView) GetByID(ctx context.Context, id string) (Account, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memView{l.m.state}.GetByID(ctx, id)
}

func (l lockedView) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memView{l.m.state}.UpdatePasswordHash(ctx, id, hash)
}

func (l lockedView) UpdateLoginState(ctx context.Context, id string, failed int, until time.Time) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memView{l.m.state}.UpdateLoginState(ctx, id, failed, until)
}

func (l lockedView) ReplaceToken(ctx context.Context, record TokenRecord) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memView{l.m.state}.ReplaceToken(ctx, record)
}

func (l lockedView) FindToken(ctx context.Context, hash [32]byte) (TokenRecord, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memView{l.m.state}.FindToken(ctx, hash)
}

func (l lockedView) ConsumeToken(ctx context.Context, hash [32]byte, now time.Time) (string, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memView{l.m.state}.ConsumeToken(ctx, hash, now)
}

func (m *memStore) Accounts() AccountStore { return lockedView{m} }
func (m *memStore) Tokens() TokenStore     { return lockedView{m} }

func (m *memStore) WithinTx(ctx context.Context, fn func(context.Context, StoreTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	if m.failTx != nil {
		return m.failTx
	}
	work := m.state.clone()
	if err := fn(ctx, memView{work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) put(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.accounts[a.ID] = a
}

func (m *memStore) account(t *testing.T, id string) Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.accounts[id]
	if !ok {
		t.Fatalf("account %s missing", id)
	}
	return a
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep advances the clock instead of blocking so floors are observable.
func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (n *captureNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *captureNotifier) sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.messages...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, e AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) all() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

func (s *recordingSink) last(t *testing.T) AuditEvent {
	t.Helper()
	events := s.all()
	if len(events) == 0 {
		t.Fatal("expected an audit event")
	}
	return events[len(events)-1]
}

type harness struct {
	engine   *Engine
	store    *memStore
	clock    *testClock
	notifier *captureNotifier
	audit    *recordingSink
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.Enabled = true
	cfg.Session.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Security.IdentityDigestKey = []byte("test-digest-key")
	cfg.Recovery.ResetURLBase = "https://app.example.com/reset"
	return cfg
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	return newHarnessWithSink(t, mutate, nil)
}

// newHarnessWithSink builds the harness with sink in place of the recording
// sink when sink is non-nil.
func newHarnessWithSink(t *testing.T, mutate func(*Config), sink AuditSink) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		store:    newMemStore(),
		clock:    &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		notifier: &captureNotifier{},
		audit:    &recordingSink{},
	}

	if sink == nil {
		sink = h.audit
	}

	engine, err := New().
		WithConfig(cfg).
		WithStore(h.store).
		WithNotifier(h.notifier).
		WithAuditSink(sink).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	engine.sleep = h.clock.Sleep
	t.Cleanup(engine.Close)
	h.engine = engine

	hasher, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}
	hash, err := hasher.Hash(alicePassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h.store.put(Account{ID: "acct-alice", Email: "alice@example.com", PasswordHash: hash, Active: true})
	h.store.put(Account{ID: "acct-bob", Email: "bob@example.com", PasswordHash: hash, Active: true})
	h.store.put(Account{ID: "acct-carol", Email: "carol@example.com", PasswordHash: hash, Active: false})
	return h
}

func (h *harness) resetTokenFor(t *testing.T, accountID string) string {
	t.Helper()
	raw, err := h.engine.Tokens().Issue(context.Background(), accountID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return raw
}

var errStoreDown = errors.New("store down")
