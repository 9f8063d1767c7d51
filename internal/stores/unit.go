package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUnitRetries = 4

var (
	// ErrConflict is returned when a unit kept losing optimistic races.
	ErrConflict = errors.New("redis unit of work conflict")
	// ErrRedisUnavailable wraps transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

type pendingWrite struct {
	key     string
	value   []byte
	ttl     time.Duration
	keepTTL bool
	del     bool
}

// Unit is one optimistic Redis transaction. Every key read is WATCHed first;
// writes are buffered, visible to later reads in the same unit, and applied
// in one MULTI/EXEC on commit. A unit is used by one goroutine.
type Unit struct {
	tx      *redis.Tx
	watched map[string]struct{}
	pending []pendingWrite
	overlay map[string]pendingWrite
}

// Get returns the value at key, or found=false when absent.
func (u *Unit) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if w, ok := u.overlay[key]; ok {
		if w.del {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	if _, ok := u.watched[key]; !ok {
		if err := u.tx.Watch(ctx, key).Err(); err != nil {
			return nil, false, err
		}
		u.watched[key] = struct{}{}
	}
	data, err := u.tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set buffers a write. ttl <= 0 means no expiry.
func (u *Unit) Set(key string, value []byte, ttl time.Duration) {
	u.push(pendingWrite{key: key, value: value, ttl: ttl})
}

// SetKeepTTL buffers a write that preserves the key's current expiry.
func (u *Unit) SetKeepTTL(key string, value []byte) {
	u.push(pendingWrite{key: key, value: value, keepTTL: true})
}

// Del buffers a delete.
func (u *Unit) Del(key string) {
	u.push(pendingWrite{key: key, del: true})
}

func (u *Unit) push(w pendingWrite) {
	u.pending = append(u.pending, w)
	u.overlay[w.key] = w
}

func (u *Unit) commit(ctx context.Context) error {
	if len(u.pending) == 0 {
		return nil
	}
	_, err := u.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range u.pending {
			switch {
			case w.del:
				pipe.Del(ctx, w.key)
			case w.keepTTL:
				pipe.SetArgs(ctx, w.key, w.value, redis.SetArgs{KeepTTL: true})
			default:
				pipe.Set(ctx, w.key, w.value, w.ttl)
			}
		}
		return nil
	})
	return err
}

// RunUnit executes fn inside a WATCH/MULTI/EXEC unit, retrying the whole of
// fn when a watched key changed before commit. An error returned by fn
// discards all buffered writes.
func RunUnit(ctx context.Context, client redis.UniversalClient, fn func(ctx context.Context, u *Unit) error) error {
	for i := 0; i < maxUnitRetries; i++ {
		var fnErr error
		err := client.Watch(ctx, func(tx *redis.Tx) error {
			u := &Unit{
				tx:      tx,
				watched: make(map[string]struct{}),
				overlay: make(map[string]pendingWrite),
			}
			if fnErr = fn(ctx, u); fnErr != nil {
				return fnErr
			}
			return u.commit(ctx)
		})

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if fnErr != nil {
				return fnErr
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	return ErrConflict
}
