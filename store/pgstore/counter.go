package pgstore

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/MrEthical07/goGuard/internal/rate"
)

// Counter is a sliding-window attempt counter over the attempt_records
// table. Allow takes a transaction-scoped advisory lock on the identity, so
// the count and the insert are atomic across processes.
type Counter struct {
	db      DB
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewCounter returns a counter over db.
func NewCounter(db DB) *Counter {
	return &Counter{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (c *Counter) WithClock(now func() time.Time) *Counter {
	if now != nil {
		c.now = now
	}
	return c
}

// Allow records one attempt for identity when fewer than max attempts fall
// in [now-window, now]. A non-positive window or max is rate.ErrInvalidWindow.
func (c *Counter) Allow(ctx context.Context, identity string, window time.Duration, max int) (bool, error) {
	if window <= 0 || max <= 0 {
		return false, rate.ErrInvalidWindow
	}
	now := c.now().UTC()

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", identity); err != nil {
		return false, fmt.Errorf("lock identity: %w", err)
	}

	sql, args, err := c.builder.Select("count(*)").
		From(attemptsTable).
		Where(squirrel.Eq{"identity": identity}).
		Where(squirrel.GtOrEq{"occurred_at": now.Add(-window)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build count attempts sql: %w", err)
	}
	var count int
	if err := tx.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("count attempts: %w", err)
	}
	if count >= max {
		return false, nil
	}

	if err := c.insert(ctx, tx, identity, now); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// Record adds one attempt unconditionally.
func (c *Counter) Record(ctx context.Context, identity string) error {
	return c.insert(ctx, c.db, identity, c.now().UTC())
}

// Prune deletes records older than retention. Run it periodically with at
// least twice the longest configured window.
func (c *Counter) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	sql, args, err := c.builder.Delete(attemptsTable).
		Where(squirrel.Lt{"occurred_at": c.now().UTC().Add(-retention)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prune attempts sql: %w", err)
	}
	tag, err := c.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (c *Counter) insert(ctx context.Context, exec executor, identity string, at time.Time) error {
	sql, args, err := c.builder.Insert(attemptsTable).
		Columns("identity", "occurred_at").
		Values(identity, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert attempt sql: %w", err)
	}
	if _, err := exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}
