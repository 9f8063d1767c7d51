package redisstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/stores"
)

const defaultPrefix = "gg:"

// Config controls key layout and token retention.
type Config struct {
	// Prefix namespaces every key. Defaults to "gg:".
	Prefix string
	// TokenRetention keeps used or expired token records around for this
	// long past their expiry before Redis evicts them. Defaults to 24h.
	TokenRetention time.Duration
}

// Store is a [goGuard.Store] over Redis. Every operation, including the ones
// called outside [Store.WithinTx], runs as an optimistic WATCH/MULTI/EXEC
// unit, so reads and writes of one call are atomic.
//
// Key layout (prefix omitted):
//
//	acct:<id>        binary account record
//	email:<email>    account id
//	tok:<hex hash>   binary token record
//	acctok:<id>      hex hash of the account's newest token
type Store struct {
	client redis.UniversalClient
	config Config
}

// New returns a store over client.
func New(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TokenRetention <= 0 {
		cfg.TokenRetention = 24 * time.Hour
	}
	return &Store{client: client, config: cfg}
}

// Accounts returns an account view where each call is its own unit.
func (s *Store) Accounts() goGuard.AccountStore { return autoView{s: s} }

// Tokens returns a token view where each call is its own unit.
func (s *Store) Tokens() goGuard.TokenStore { return autoView{s: s} }

// WithinTx runs fn in one unit. fn may run more than once when a watched key
// changes concurrently; it must not have side effects outside tx.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx goGuard.StoreTx) error) error {
	return s.run(ctx, func(ctx context.Context, v unitView) error {
		return fn(ctx, v)
	})
}

// PutAccount creates or replaces an account and its email index entry. The
// email is stored normalized, the form the engine looks it up by.
func (s *Store) PutAccount(ctx context.Context, account goGuard.Account) error {
	account.Email = internal.NormalizeIdentifier(account.Email)
	if account.ID == "" || account.Email == "" {
		return errors.New("account id and email required")
	}
	return s.run(ctx, func(ctx context.Context, v unitView) error {
		previous, found, err := v.load(ctx, account.ID)
		if err != nil {
			return err
		}
		if found && internal.NormalizeIdentifier(previous.Email) != account.Email {
			v.u.Del(s.emailKey(internal.NormalizeIdentifier(previous.Email)))
		}
		return v.save(account, true)
	})
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context, v unitView) error) error {
	return stores.RunUnit(ctx, s.client, func(ctx context.Context, u *stores.Unit) error {
		return fn(ctx, unitView{s: s, u: u})
	})
}

func (s *Store) accountKey(id string) string { return s.config.Prefix + "acct:" + id }
func (s *Store) emailKey(email string) string { return s.config.Prefix + "email:" + email }
func (s *Store) tokenKey(hash string) string  { return s.config.Prefix + "tok:" + hash }
func (s *Store) pointerKey(id string) string  { return s.config.Prefix + "acctok:" + id }

// unitView serves one unit of work.
type unitView struct {
	s *Store
	u *stores.Unit
}

func (v unitView) Accounts() goGuard.AccountStore { return v }
func (v unitView) Tokens() goGuard.TokenStore     { return v }

func (v unitView) load(ctx context.Context, id string) (goGuard.Account, bool, error) {
	data, found, err := v.u.Get(ctx, v.s.accountKey(id))
	if err != nil || !found {
		return goGuard.Account{}, false, err
	}
	record, err := stores.DecodeAccountRecord(data)
	if err != nil {
		return goGuard.Account{}, false, err
	}
	return accountFromRecord(record), true, nil
}

func (v unitView) save(account goGuard.Account, index bool) error {
	data, err := stores.EncodeAccountRecord(accountToRecord(account))
	if err != nil {
		return err
	}
	v.u.Set(v.s.accountKey(account.ID), data, 0)
	if index {
		v.u.Set(v.s.emailKey(account.Email), []byte(account.ID), 0)
	}
	return nil
}

func (v unitView) GetByIdentifier(ctx context.Context, identifier string) (goGuard.Account, error) {
	id, found, err := v.u.Get(ctx, v.s.emailKey(identifier))
	if err != nil {
		return goGuard.Account{}, err
	}
	if !found {
		return goGuard.Account{}, goGuard.ErrAccountNotFound
	}
	return v.GetByID(ctx, string(id))
}

func (v unitView) GetByID(ctx context.Context, accountID string) (goGuard.Account, error) {
	account, found, err := v.load(ctx, accountID)
	if err != nil {
		return goGuard.Account{}, err
	}
	if !found {
		return goGuard.Account{}, goGuard.ErrAccountNotFound
	}
	return account, nil
}

func (v unitView) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	account, err := v.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	account.PasswordHash = passwordHash
	return v.save(account, false)
}

func (v unitView) UpdateLoginState(ctx context.Context, accountID string, failedAttempts int, lockoutUntil time.Time) error {
	if failedAttempts < 0 {
		return fmt.Errorf("negative failed attempts %d", failedAttempts)
	}
	account, err := v.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	account.FailedAttempts = failedAttempts
	account.LockoutUntil = lockoutUntil
	return v.save(account, false)
}

func (v unitView) ReplaceToken(ctx context.Context, record goGuard.TokenRecord) error {
	if record.AccountID == "" {
		return errors.New("token account id required")
	}
	pointer := v.s.pointerKey(record.AccountID)
	previous, found, err := v.u.Get(ctx, pointer)
	if err != nil {
		return err
	}
	if found {
		key := v.s.tokenKey(string(previous))
		data, ok, err := v.u.Get(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			old, err := stores.DecodeTokenRecord(data)
			if err != nil {
				return err
			}
			if !old.Used {
				old.Used = true
				encoded, err := stores.EncodeTokenRecord(old)
				if err != nil {
					return err
				}
				v.u.SetKeepTTL(key, encoded)
			}
		}
	}

	hash := hex.EncodeToString(record.Hash[:])
	encoded, err := stores.EncodeTokenRecord(tokenToRecord(record))
	if err != nil {
		return err
	}
	ttl := record.ExpiresAt.Sub(record.CreatedAt) + v.s.config.TokenRetention
	v.u.Set(v.s.tokenKey(hash), encoded, ttl)
	v.u.Set(pointer, []byte(hash), ttl)
	return nil
}

func (v unitView) FindToken(ctx context.Context, hash [32]byte) (goGuard.TokenRecord, error) {
	data, found, err := v.u.Get(ctx, v.s.tokenKey(hex.EncodeToString(hash[:])))
	if err != nil {
		return goGuard.TokenRecord{}, err
	}
	if !found {
		return goGuard.TokenRecord{}, goGuard.ErrTokenNotFound
	}
	record, err := stores.DecodeTokenRecord(data)
	if err != nil {
		return goGuard.TokenRecord{}, err
	}
	return tokenFromRecord(hash, record), nil
}

func (v unitView) ConsumeToken(ctx context.Context, hash [32]byte, now time.Time) (string, error) {
	key := v.s.tokenKey(hex.EncodeToString(hash[:]))
	data, found, err := v.u.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", goGuard.ErrTokenNotFound
	}
	record, err := stores.DecodeTokenRecord(data)
	if err != nil {
		return "", err
	}
	if record.Used || now.UnixNano() >= record.ExpiresAt {
		return "", goGuard.ErrTokenNotFound
	}
	record.Used = true
	encoded, err := stores.EncodeTokenRecord(record)
	if err != nil {
		return "", err
	}
	v.u.SetKeepTTL(key, encoded)
	return record.AccountID, nil
}

// autoView runs every call in its own unit.
type autoView struct{ s *Store }

func (a autoView) GetByIdentifier(ctx context.Context, identifier string) (out goGuard.Account, err error) {
	err = a.s.run(ctx, func(ctx context.Context, v unitView) error {
		out, err = v.GetByIdentifier(ctx, identifier)
		return err
	})
	return out, err
}

func (a autoView) GetByID(ctx context.Context, accountID string) (out goGuard.Account, err error) {
	err = a.s.run(ctx, func(ctx context.Context, v unitView) error {
		out, err = v.GetByID(ctx, accountID)
		return err
	})
	return out, err
}

func (a autoView) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	return a.s.run(ctx, func(ctx context.Context, v unitView) error {
		return v.UpdatePasswordHash(ctx, accountID, passwordHash)
	})
}

func (a autoView) UpdateLoginState(ctx context.Context, accountID string, failedAttempts int, lockoutUntil time.Time) error {
	return a.s.run(ctx, func(ctx context.Context, v unitView) error {
		return v.UpdateLoginState(ctx, accountID, failedAttempts, lockoutUntil)
	})
}

func (a autoView) ReplaceToken(ctx context.Context, record goGuard.TokenRecord) error {
	return a.s.run(ctx, func(ctx context.Context, v unitView) error {
		return v.ReplaceToken(ctx, record)
	})
}

func (a autoView) FindToken(ctx context.Context, hash [32]byte) (out goGuard.TokenRecord, err error) {
	err = a.s.run(ctx, func(ctx context.Context, v unitView) error {
		out, err = v.FindToken(ctx, hash)
		return err
	})
	return out, err
}

func (a autoView) ConsumeToken(ctx context.Context, hash [32]byte, now time.Time) (out string, err error) {
	err = a.s.run(ctx, func(ctx context.Context, v unitView) error {
		out, err = v.ConsumeToken(ctx, hash, now)
		return err
	})
	return out, err
}

func accountToRecord(a goGuard.Account) *stores.AccountRecord {
	return &stores.AccountRecord{
		ID:             a.ID,
		Email:          a.Email,
		PasswordHash:   a.PasswordHash,
		Active:         a.Active,
		FailedAttempts: uint32(a.FailedAttempts),
		LockoutUntil:   unixNanos(a.LockoutUntil),
	}
}

func accountFromRecord(r *stores.AccountRecord) goGuard.Account {
	return goGuard.Account{
		ID:             r.ID,
		Email:          r.Email,
		PasswordHash:   r.PasswordHash,
		Active:         r.Active,
		FailedAttempts: int(r.FailedAttempts),
		LockoutUntil:   fromUnixNanos(r.LockoutUntil),
	}
}

func tokenToRecord(t goGuard.TokenRecord) *stores.TokenRecord {
	return &stores.TokenRecord{
		ID:        t.ID,
		AccountID: t.AccountID,
		CreatedAt: unixNanos(t.CreatedAt),
		ExpiresAt: unixNanos(t.ExpiresAt),
		Used:      t.Used,
	}
}

func tokenFromRecord(hash [32]byte, r *stores.TokenRecord) goGuard.TokenRecord {
	return goGuard.TokenRecord{
		ID:        r.ID,
		AccountID: r.AccountID,
		Hash:      hash,
		CreatedAt: fromUnixNanos(r.CreatedAt),
		ExpiresAt: fromUnixNanos(r.ExpiresAt),
		Used:      r.Used,
	}
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
