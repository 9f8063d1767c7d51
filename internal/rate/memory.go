package rate

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process [Counter]. It is only correct for a single process;
// multi-instance deployments use [Sliding].
type Memory struct {
	mu        sync.Mutex
	entries   map[string][]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemory creates an in-process counter. retention bounds how long
// timestamps are kept for Count and Record-only keys.
func NewMemory(retention time.Duration) *Memory {
	if retention <= 0 {
		retention = 2 * time.Hour
	}
	return &Memory{
		entries:   make(map[string][]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Not safe to call concurrently with Allow.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Allow implements [Counter].
func (m *Memory) Allow(_ context.Context, key string, window time.Duration, max int) (bool, error) {
	if err := validWindow(window, max); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	live := 0
	for _, at := range m.trim(key, now, window) {
		if !at.Before(now.Add(-window)) {
			live++
		}
	}
	if live >= max {
		return false, nil
	}
	m.entries[key] = append(m.entries[key], now)
	return true, nil
}

// Record implements [Counter].
func (m *Memory) Record(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.entries[key] = append(m.trim(key, now, 0), now)
	return nil
}

// Count returns the number of attempts recorded in [now-window, now].
func (m *Memory) Count(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, at := range m.entries[key] {
		if !at.Before(now.Add(-window)) && !at.After(now) {
			n++
		}
	}
	return n, nil
}

// trim drops timestamps older than the retention horizon, never closer than
// 2*window. Caller holds mu.
func (m *Memory) trim(key string, now time.Time, window time.Duration) []time.Time {
	keep := m.retention
	if 2*window > keep {
		keep = 2 * window
	}
	stamps := m.entries[key]
	horizon := now.Add(-keep)
	i := 0
	for i < len(stamps) && stamps[i].Before(horizon) {
		i++
	}
	if i == len(stamps) {
		delete(m.entries, key)
		return nil
	}
	stamps = stamps[i:]
	m.entries[key] = stamps
	return stamps
}
