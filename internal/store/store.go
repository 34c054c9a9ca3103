// Package store keeps device-scoped state that must outlive a single
// session: the replay lock written after a successful submission and the
// access window lease written at join.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-player/internal/config"
)

// Device is a small string key-value store, the Go counterpart of the
// browser's local storage. Get reports found=false for a missing key.
type Device interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Lease is the persisted access window of one participant on one device.
type Lease struct {
	ExpiresAt time.Time
}

type leaseRecord struct {
	Expires int64 `json:"expires"`
}

// HasReplayLock reports whether this device already submitted the quiz.
func HasReplayLock(ctx context.Context, d Device, quizID, fingerprint string) (bool, error) {
	v, found, err := d.Get(ctx, config.CacheKey.ReplayLockKey(quizID, fingerprint))
	if err != nil {
		return false, fmt.Errorf("read replay lock: %w", err)
	}
	return found && v == config.ReplayLockValue, nil
}

// WriteReplayLock marks the quiz as submitted from this device.
func WriteReplayLock(ctx context.Context, d Device, quizID, fingerprint string) error {
	if err := d.Set(ctx, config.CacheKey.ReplayLockKey(quizID, fingerprint), config.ReplayLockValue); err != nil {
		return fmt.Errorf("write replay lock: %w", err)
	}
	return nil
}

// ClearReplayLock removes a lock. Support tooling only; sessions never call it.
func ClearReplayLock(ctx context.Context, d Device, quizID, fingerprint string) error {
	if err := d.Delete(ctx, config.CacheKey.ReplayLockKey(quizID, fingerprint)); err != nil {
		return fmt.Errorf("clear replay lock: %w", err)
	}
	return nil
}

// LoadLease returns the stored lease, if any. A corrupt record is treated as absent.
func LoadLease(ctx context.Context, d Device, quizID, fingerprint string) (Lease, bool, error) {
	v, found, err := d.Get(ctx, config.CacheKey.AccessLeaseKey(quizID, fingerprint))
	if err != nil {
		return Lease{}, false, fmt.Errorf("read access lease: %w", err)
	}
	if !found {
		return Lease{}, false, nil
	}
	var rec leaseRecord
	if err := json.Unmarshal([]byte(v), &rec); err != nil || rec.Expires <= 0 {
		return Lease{}, false, nil
	}
	return Lease{ExpiresAt: time.UnixMilli(rec.Expires)}, true, nil
}

// SaveLease persists the lease expiry in epoch milliseconds.
func SaveLease(ctx context.Context, d Device, quizID, fingerprint string, lease Lease) error {
	raw, err := json.Marshal(leaseRecord{Expires: lease.ExpiresAt.UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode access lease: %w", err)
	}
	if err := d.Set(ctx, config.CacheKey.AccessLeaseKey(quizID, fingerprint), string(raw)); err != nil {
		return fmt.Errorf("write access lease: %w", err)
	}
	return nil
}

// EnsureLease returns the unexpired lease for the quiz, or writes a new one
// of the given length. An expired lease is replaced.
func EnsureLease(ctx context.Context, d Device, quizID, fingerprint string, window time.Duration, now time.Time) (Lease, error) {
	lease, found, err := LoadLease(ctx, d, quizID, fingerprint)
	if err != nil {
		return Lease{}, err
	}
	if found && lease.ExpiresAt.After(now) {
		return lease, nil
	}
	lease = Lease{ExpiresAt: now.Add(window)}
	if err := SaveLease(ctx, d, quizID, fingerprint, lease); err != nil {
		return Lease{}, err
	}
	return lease, nil
}

// Open builds the Device selected by kind. The redis client is only needed
// for config.DeviceStoreRedis. The returned close func is never nil.
func Open(kind, path string, rdb *redis.Client) (Device, func() error, error) {
	noop := func() error { return nil }
	switch kind {
	case "", config.DeviceStoreMemory:
		return NewMemory(), noop, nil
	case config.DeviceStoreSQLite:
		s, err := NewSQLite(path)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite device store: %w", err)
		}
		return s, s.Close, nil
	case config.DeviceStoreRedis:
		if rdb == nil {
			return nil, noop, errors.New("redis device store requires a redis client")
		}
		return NewRedis(rdb), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown device store %q", kind)
}
