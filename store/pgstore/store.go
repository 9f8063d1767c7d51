package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal"
)

// Schema is the DDL for the tables this package reads and writes.
//
//go:embed schema.sql
var Schema string

const (
	accountsTable = "accounts"
	tokensTable   = "recovery_tokens"
	attemptsTable = "attempt_records"
)

const replaceUnusedToken = "ON CONFLICT (account_id) WHERE NOT used DO UPDATE SET " +
	"id = EXCLUDED.id, token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at"

var accountColumns = []string{"id", "email", "password_hash", "active", "failed_attempts", "lockout_until"}

type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is satisfied by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	executor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a [goGuard.Store] over PostgreSQL. Transactions use the default
// READ COMMITTED level; account rows read inside [Store.WithinTx] are locked
// with SELECT ... FOR UPDATE so concurrent lockout bookkeeping serializes on
// the row.
type Store struct {
	db      DB
	builder squirrel.StatementBuilderType
}

// Open connects a pool to dsn.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// New returns a store over db.
func New(db DB) *Store {
	return &Store{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Migrate applies [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Accounts() goGuard.AccountStore { return s.view(s.db, false) }
func (s *Store) Tokens() goGuard.TokenStore     { return s.view(s.db, false) }

// WithinTx runs fn in one database transaction, committing on nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx goGuard.StoreTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, s.view(tx, true)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PutAccount inserts or replaces an account row. The email is stored
// normalized, the form the engine looks it up by.
func (s *Store) PutAccount(ctx context.Context, account goGuard.Account) error {
	email := internal.NormalizeIdentifier(account.Email)
	if account.ID == "" || email == "" {
		return errors.New("account id and email required")
	}
	sql, args, err := s.builder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(account.ID, email, account.PasswordHash, account.Active, account.FailedAttempts, nullableTime(account.LockoutUntil)).
		Suffix("ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, password_hash = EXCLUDED.password_hash, active = EXCLUDED.active, failed_attempts = EXCLUDED.failed_attempts, lockout_until = EXCLUDED.lockout_until").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert account sql: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *Store) view(exec executor, inTx bool) view {
	return view{store: s, exec: exec, inTx: inTx}
}

// view runs statements on the pool or on one transaction.
type view struct {
	store *Store
	exec  executor
	inTx  bool
}

func (v view) Accounts() goGuard.AccountStore { return v }
func (v view) Tokens() goGuard.TokenStore     { return v }

func (v view) selectAccount(where squirrel.Eq) squirrel.SelectBuilder {
	q := v.store.builder.Select(accountColumns...).From(accountsTable).Where(where).Limit(1)
	if v.inTx {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (v view) getAccount(ctx context.Context, q squirrel.SelectBuilder) (goGuard.Account, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return goGuard.Account{}, fmt.Errorf("build select account sql: %w", err)
	}

	var (
		account      goGuard.Account
		lockoutUntil *time.Time
	)
	err = v.exec.QueryRow(ctx, sql, args...).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Active,
		&account.FailedAttempts,
		&lockoutUntil,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return goGuard.Account{}, goGuard.ErrAccountNotFound
	}
	if err != nil {
		return goGuard.Account{}, fmt.Errorf("select account: %w", err)
	}
	if lockoutUntil != nil {
		account.LockoutUntil = lockoutUntil.UTC()
	}
	return account, nil
}

func (v view) GetByIdentifier(ctx context.Context, identifier string) (goGuard.Account, error) {
	return v.getAccount(ctx, v.selectAccount(squirrel.Eq{"email": identifier}))
}

func (v view) GetByID(ctx context.Context, accountID string) (goGuard.Account, error) {
	return v.getAccount(ctx, v.selectAccount(squirrel.Eq{"id": accountID}))
}

func (v view) updateAccount(ctx context.Context, accountID string, set map[string]any) error {
	sql, args, err := v.store.builder.Update(accountsTable).
		SetMap(set).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update account sql: %w", err)
	}
	tag, err := v.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return goGuard.ErrAccountNotFound
	}
	return nil
}

func (v view) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	return v.updateAccount(ctx, accountID, map[string]any{"password_hash": passwordHash})
}

func (v view) UpdateLoginState(ctx context.Context, accountID string, failedAttempts int, lockoutUntil time.Time) error {
	return v.updateAccount(ctx, accountID, map[string]any{
		"failed_attempts": failedAttempts,
		"lockout_until":   nullableTime(lockoutUntil),
	})
}

// ReplaceToken retires unused tokens and inserts record in one transaction,
// opening one when the view is not already transactional.
//
// A concurrent issue for the same account cannot see this transaction's
// uncommitted row, so its insert would collide on recovery_tokens_one_unused.
// The upsert waits for the other transaction and then overwrites its token,
// leaving only the newest hash redeemable. The account row is not locked
// here: ConfirmReset locks token then account, and taking them in the other
// order would deadlock.
func (v view) ReplaceToken(ctx context.Context, record goGuard.TokenRecord) error {
	if !v.inTx {
		return v.store.WithinTx(ctx, func(ctx context.Context, tx goGuard.StoreTx) error {
			return tx.Tokens().ReplaceToken(ctx, record)
		})
	}

	retire, retireArgs, err := v.store.builder.Update(tokensTable).
		Set("used", true).
		Where(squirrel.Eq{"account_id": record.AccountID, "used": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build retire tokens sql: %w", err)
	}
	if _, err := v.exec.Exec(ctx, retire, retireArgs...); err != nil {
		return fmt.Errorf("retire tokens: %w", err)
	}

	insert, insertArgs, err := v.store.builder.Insert(tokensTable).
		Columns("id", "account_id", "token_hash", "expires_at", "used", "created_at").
		Values(record.ID, record.AccountID, record.Hash[:], record.ExpiresAt, false, record.CreatedAt).
		Suffix(replaceUnusedToken).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}
	if _, err := v.exec.Exec(ctx, insert, insertArgs...); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (v view) FindToken(ctx context.Context, hash [32]byte) (goGuard.TokenRecord, error) {
	sql, args, err := v.store.builder.Select("id", "account_id", "expires_at", "used", "created_at").
		From(tokensTable).
		// squirrel.Eq would expand the byte slice into an IN list.
		Where(squirrel.Expr("token_hash = ?", hash[:])).
		Limit(1).
		ToSql()
	if err != nil {
		return goGuard.TokenRecord{}, fmt.Errorf("build select token sql: %w", err)
	}

	record := goGuard.TokenRecord{Hash: hash}
	err = v.exec.QueryRow(ctx, sql, args...).Scan(
		&record.ID,
		&record.AccountID,
		&record.ExpiresAt,
		&record.Used,
		&record.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return goGuard.TokenRecord{}, goGuard.ErrTokenNotFound
	}
	if err != nil {
		return goGuard.TokenRecord{}, fmt.Errorf("select token: %w", err)
	}
	return record, nil
}

// ConsumeToken is a single conditional UPDATE; concurrent callers race on
// the row and at most one sees it unused.
func (v view) ConsumeToken(ctx context.Context, hash [32]byte, now time.Time) (string, error) {
	sql, args, err := v.store.builder.Update(tokensTable).
		Set("used", true).
		Where(squirrel.Expr("token_hash = ?", hash[:])).
		Where(squirrel.Eq{"used": false}).
		Where(squirrel.Gt{"expires_at": now}).
		Suffix("RETURNING account_id").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build consume token sql: %w", err)
	}

	var accountID string
	err = v.exec.QueryRow(ctx, sql, args...).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", goGuard.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume token: %w", err)
	}
	return accountID, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
