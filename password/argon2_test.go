package password

import (
	"errors"
	"strings"
	"testing"
)

// loginConfig is the cheapest config validateConfig accepts.
func loginConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func TestHashRoundTrip(t *testing.T) {
	h := newHasher(t, loginConfig())

	encoded, err := h.Hash("correct-horse-battery-42")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %s", encoded)
	}

	again, err := h.Hash("correct-horse-battery-42")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if again == encoded {
		t.Fatal("expected a fresh salt per hash")
	}

	for pw, want := range map[string]bool{
		"correct-horse-battery-42": true,
		"Correct-horse-battery-42": false,
		"correct-horse-battery-4":  false,
	} {
		ok, err := h.Verify(pw, encoded)
		if err != nil {
			t.Fatalf("verify %q: %v", pw, err)
		}
		if ok != want {
			t.Fatalf("verify %q = %v, want %v", pw, ok, want)
		}
	}
}

func TestVerifyUsesParametersFromHash(t *testing.T) {
	stronger := loginConfig()
	stronger.Time = 2
	encoded, err := newHasher(t, stronger).Hash("pw-made-under-old-cost")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := newHasher(t, loginConfig()).Verify("pw-made-under-old-cost", encoded)
	if err != nil || !ok {
		t.Fatalf("hashes from other configs must still verify: ok=%v err=%v", ok, err)
	}
}

func TestVerifyDecoyNeverMatches(t *testing.T) {
	h := newHasher(t, loginConfig())
	if h.decoy == "" {
		t.Fatal("expected decoy hash to be computed at construction")
	}
	ok, err := h.Verify("decoy-password-never-matches", h.decoy)
	if err != nil || !ok {
		t.Fatalf("decoy must be a well-formed hash: ok=%v err=%v", ok, err)
	}

	for _, pw := range []string{"", "decoy-password-never-matches", "alice", strings.Repeat("x", 4*DefaultMaxPasswordBytes)} {
		if h.VerifyDecoy(pw) {
			t.Fatalf("decoy matched %d byte input", len(pw))
		}
	}
}

func TestMaxPasswordBytes(t *testing.T) {
	cases := []struct {
		name  string
		limit int
		max   int
	}{
		{name: "default", limit: 0, max: DefaultMaxPasswordBytes},
		{name: "configured", limit: 64, max: 64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := loginConfig()
			cfg.MaxPasswordBytes = tc.limit
			h := newHasher(t, cfg)

			exact := strings.Repeat("b", tc.max)
			encoded, err := h.Hash(exact)
			if err != nil {
				t.Fatalf("password of exactly %d bytes rejected: %v", tc.max, err)
			}
			if ok, err := h.Verify(exact, encoded); err != nil || !ok {
				t.Fatalf("verify at limit: ok=%v err=%v", ok, err)
			}

			tooLong := exact + "b"
			if _, err := h.Hash(tooLong); !errors.Is(err, ErrPasswordTooLong) {
				t.Fatalf("expected ErrPasswordTooLong from Hash, got %v", err)
			}
			if _, err := h.Verify(tooLong, encoded); !errors.Is(err, ErrPasswordTooLong) {
				t.Fatalf("expected ErrPasswordTooLong from Verify, got %v", err)
			}
		})
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	if _, err := newHasher(t, loginConfig()).Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	current := newHasher(t, loginConfig())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{name: "current", mutate: func(*Config) {}, want: false},
		{name: "shorter key", mutate: func(c *Config) { c.KeyLength = 16 }, want: true},
		// A stronger stored hash is left alone; the config only ratchets up.
		{name: "higher time", mutate: func(c *Config) { c.Time = 2 }, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := loginConfig()
			tc.mutate(&cfg)
			encoded, err := newHasher(t, cfg).Hash("upgrade-me-please")
			if err != nil {
				t.Fatalf("hash: %v", err)
			}
			got, err := current.NeedsUpgrade(encoded)
			if err != nil {
				t.Fatalf("NeedsUpgrade: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tc.want)
			}
		})
	}

	raised := loginConfig()
	raised.Memory = 16 * 1024
	encoded, err := current.Hash("upgrade-me-please")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if got, err := newHasher(t, raised).NeedsUpgrade(encoded); err != nil || !got {
		t.Fatalf("raising memory must flag old hashes: got=%v err=%v", got, err)
	}
}

func TestMalformedHashes(t *testing.T) {
	h := newHasher(t, loginConfig())
	valid, err := h.Hash("well-formed")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	for name, encoded := range map[string]string{
		"not phc":       "not-a-phc-hash",
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuv",
		"wrong version": strings.Replace(valid, "$v=19$", "$v=18$", 1),
		"low memory":    strings.Replace(valid, "m=8192", "m=1024", 1),
		"missing param": strings.Replace(valid, ",p=1", "", 1),
	} {
		if _, err := h.Verify("well-formed", encoded); err == nil {
			t.Fatalf("%s: expected Verify error", name)
		}
		if _, err := h.NeedsUpgrade(encoded); err == nil {
			t.Fatalf("%s: expected NeedsUpgrade error", name)
		}
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"memory":    func(c *Config) { c.Memory = 4 * 1024 },
		"time":      func(c *Config) { c.Time = 0 },
		"salt":      func(c *Config) { c.SaltLength = 8 },
		"key":       func(c *Config) { c.KeyLength = 8 },
		"max bytes": func(c *Config) { c.MaxPasswordBytes = 4 },
	} {
		cfg := loginConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}
