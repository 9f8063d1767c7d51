package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/store/redisstore"
)

const alicePassword = "correct-horse-battery-42"

type testServer struct {
	handler http.Handler
	sent    *sentMessages
	store   *redisstore.Store
}

type sentMessages struct {
	mu   sync.Mutex
	msgs []goGuard.Message
}

func (s *sentMessages) Send(_ context.Context, msg goGuard.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *sentMessages) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func newTestServer(t *testing.T, mutate func(*goGuard.Config)) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := goGuard.DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Recovery.ResponseFloor = 200 * time.Millisecond
	cfg.Recovery.ResetURLBase = "https://app.example.com/reset"
	cfg.Security.IdentityDigestKey = []byte("http-test-digest-key")
	if mutate != nil {
		mutate(&cfg)
	}

	store := redisstore.New(client, redisstore.Config{})
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
		{ID: "acct-bob", Email: "bob@example.com", PasswordHash: hash, Active: true},
	} {
		if err := store.PutAccount(ctx, a); err != nil {
			t.Fatalf("PutAccount: %v", err)
		}
	}

	sent := &sentMessages{}
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		WithNotifier(sent).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	handler, err := NewRouter(RouterConfig{
		Engine:     engine,
		Log:        zerolog.Nop(),
		Registerer: prometheus.NewRegistry(),
		Health: map[string]HealthCheck{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return &testServer{handler: handler, sent: sent, store: store}
}

func (s *testServer) post(t *testing.T, path, remoteIP string, body any) (int, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteIP + ":40000"
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	out, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(out)
}

func TestRecoveryRequest_BobAndGhostIdenticalJSON(t *testing.T) {
	s := newTestServer(t, nil)

	bobCode, bobBody := s.post(t, "/recovery/request", "198.51.100.7", map[string]string{"identifier": "bob@example.com"})
	ghostCode, ghostBody := s.post(t, "/recovery/request", "198.51.100.8", map[string]string{"identifier": "ghost@example.com"})

	if bobCode != http.StatusOK || ghostCode != http.StatusOK {
		t.Fatalf("status bob=%d ghost=%d", bobCode, ghostCode)
	}
	if bobBody != ghostBody {
		t.Fatalf("bodies differ:\nbob:   %s\nghost: %s", bobBody, ghostBody)
	}
	if !strings.Contains(bobBody, msgResetRequested) {
		t.Fatalf("unexpected body %s", bobBody)
	}
	if s.sent.count() != 1 {
		t.Fatalf("expected exactly one reset message, got %d", s.sent.count())
	}
}

func TestRecoveryRequest_ThrottledReturns429(t *testing.T) {
	s := newTestServer(t, func(c *goGuard.Config) { c.Recovery.IPMax = 1 })

	if code, _ := s.post(t, "/recovery/request", "203.0.113.1", map[string]string{"identifier": "ghost1@example.com"}); code != http.StatusOK {
		t.Fatalf("first request status %d", code)
	}
	code, body := s.post(t, "/recovery/request", "203.0.113.1", map[string]string{"identifier": "ghost2@example.com"})
	if code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if !strings.Contains(body, msgThrottled) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestRecoveryRequest_MalformedBody(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.post(t, "/recovery/request", "203.0.113.2", map[string]string{"email": "bob@example.com"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if !strings.Contains(body, msgBadRequest) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestRecoveryConfirm_InvalidTokenIsGeneric(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.post(t, "/recovery/confirm", "203.0.113.3", map[string]string{
		"token":        "not-a-real-token",
		"new_password": "another-long-passphrase-77",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if !strings.Contains(body, msgResetInvalid) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestRecoveryConfirm_ResetsPasswordThenLogin(t *testing.T) {
	s := newTestServer(t, nil)

	if code, _ := s.post(t, "/recovery/request", "203.0.113.4", map[string]string{"identifier": "alice@example.com"}); code != http.StatusOK {
		t.Fatalf("request status %d", code)
	}
	if s.sent.count() != 1 {
		t.Fatalf("expected a reset message")
	}
	link := s.sent.msgs[0].ResetURL
	token := link[strings.Index(link, "token=")+len("token="):]

	const newPassword = "brand-new-passphrase-2026"
	code, body := s.post(t, "/recovery/confirm", "203.0.113.4", map[string]string{"token": token, "new_password": newPassword})
	if code != http.StatusOK || !strings.Contains(body, msgResetDone) {
		t.Fatalf("confirm = %d %s", code, body)
	}

	code, body = s.post(t, "/login", "203.0.113.4", map[string]string{"identifier": "alice@example.com", "password": newPassword})
	if code != http.StatusOK {
		t.Fatalf("login with new password = %d %s", code, body)
	}
	var resp loginResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if !resp.Success || resp.SessionID == "" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	if code, _ := s.post(t, "/recovery/confirm", "203.0.113.4", map[string]string{"token": token, "new_password": newPassword}); code != http.StatusBadRequest {
		t.Fatalf("reused token should fail, got %d", code)
	}
}

func TestLogin_FailuresShareOneResponse(t *testing.T) {
	s := newTestServer(t, nil)

	wrongCode, wrongBody := s.post(t, "/login", "203.0.113.5", map[string]string{"identifier": "alice@example.com", "password": "nope-nope-nope"})
	ghostCode, ghostBody := s.post(t, "/login", "203.0.113.5", map[string]string{"identifier": "ghost@example.com", "password": "nope-nope-nope"})

	if wrongCode != http.StatusUnauthorized || ghostCode != http.StatusUnauthorized {
		t.Fatalf("status wrong=%d ghost=%d", wrongCode, ghostCode)
	}
	if wrongBody != ghostBody {
		t.Fatalf("bodies differ:\n%s\n%s", wrongBody, ghostBody)
	}
}

func TestLogin_LockedAccountLooksLikeBadPassword(t *testing.T) {
	s := newTestServer(t, nil)

	_, wrongBody := s.post(t, "/login", "203.0.113.6", map[string]string{"identifier": "alice@example.com", "password": "wrong-guess"})
	for i := 0; i < 5; i++ {
		s.post(t, "/login", "203.0.113.6", map[string]string{"identifier": "alice@example.com", "password": "wrong-guess"})
	}
	code, body := s.post(t, "/login", "203.0.113.6", map[string]string{"identifier": "alice@example.com", "password": alicePassword})
	if code != http.StatusUnauthorized {
		t.Fatalf("locked login status %d", code)
	}
	if body != wrongBody {
		t.Fatalf("locked response differs:\n%s\n%s", body, wrongBody)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"redis":"ok"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

type failingEngine struct{ err error }

func (f failingEngine) RequestReset(context.Context, string, string) error { return f.err }
func (f failingEngine) ConfirmReset(context.Context, string, string) error { return f.err }
func (f failingEngine) Authenticate(context.Context, string, string, string) (goGuard.AuthResult, error) {
	return goGuard.AuthResult{}, f.err
}

func TestPersistenceFailureIsOpaque(t *testing.T) {
	engineErr := errors.Join(goGuard.ErrPersistence, errors.New("dial tcp 10.0.0.5:5432: refused"))
	handler, err := NewRouter(RouterConfig{Engine: failingEngine{err: engineErr}, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	s := &testServer{handler: handler}

	bodies := map[string]map[string]string{
		"/recovery/request": {"identifier": "bob@example.com"},
		"/login":            {"identifier": "bob@example.com", "password": "whatever-pass"},
	}
	for path, reqBody := range bodies {
		code, body := s.post(t, path, "203.0.113.9", reqBody)
		if code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", path, code)
		}
		if strings.Contains(body, "10.0.0.5") || !strings.Contains(body, msgInternal) {
			t.Fatalf("%s: leaked or unexpected body %s", path, body)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler, err := NewRouter(RouterConfig{
		Engine:    failingEngine{},
		Log:       zerolog.Nop(),
		RateLimit: "1-M",
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	s := &testServer{handler: handler}
	if code, _ := s.post(t, "/recovery/request", "192.0.2.10", map[string]string{"identifier": "a@example.com"}); code != http.StatusOK {
		t.Fatalf("first request status %d", code)
	}
	code, body := s.post(t, "/recovery/request", "192.0.2.10", map[string]string{"identifier": "a@example.com"})
	if code != http.StatusTooManyRequests || !strings.Contains(body, msgThrottled) {
		t.Fatalf("expected limiter 429, got %d %s", code, body)
	}
}
