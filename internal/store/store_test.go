package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-player/internal/config"
)

func devices(t *testing.T) map[string]Device {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sq, err := NewSQLite(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Device{
		"memory": NewMemory(),
		"sqlite": sq,
		"redis":  NewRedis(client),
	}
}

func TestReplayLockLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, d := range devices(t) {
		t.Run(name, func(t *testing.T) {
			locked, err := HasReplayLock(ctx, d, "17", "fp")
			if err != nil || locked {
				t.Fatalf("fresh device: locked=%v err=%v", locked, err)
			}

			if err := WriteReplayLock(ctx, d, "17", "fp"); err != nil {
				t.Fatalf("WriteReplayLock: %v", err)
			}
			if locked, _ := HasReplayLock(ctx, d, "17", "fp"); !locked {
				t.Fatal("expected lock after write")
			}
			if locked, _ := HasReplayLock(ctx, d, "18", "fp"); locked {
				t.Fatal("lock must be scoped per quiz")
			}
			if locked, _ := HasReplayLock(ctx, d, "17", "other"); locked {
				t.Fatal("lock must be scoped per fingerprint")
			}

			if err := ClearReplayLock(ctx, d, "17", "fp"); err != nil {
				t.Fatalf("ClearReplayLock: %v", err)
			}
			if locked, _ := HasReplayLock(ctx, d, "17", "fp"); locked {
				t.Fatal("expected lock cleared")
			}
		})
	}
}

func TestEnsureLeaseReusesUnexpired(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	for name, d := range devices(t) {
		t.Run(name, func(t *testing.T) {
			first, err := EnsureLease(ctx, d, "17", "fp", 30*time.Minute, now)
			if err != nil {
				t.Fatalf("EnsureLease: %v", err)
			}
			if !first.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
				t.Fatalf("unexpected expiry %v", first.ExpiresAt)
			}

			again, err := EnsureLease(ctx, d, "17", "fp", 30*time.Minute, now.Add(10*time.Minute))
			if err != nil {
				t.Fatalf("EnsureLease: %v", err)
			}
			if !again.ExpiresAt.Equal(first.ExpiresAt) {
				t.Fatalf("re-join must not extend the window: %v vs %v", again.ExpiresAt, first.ExpiresAt)
			}

			later := now.Add(time.Hour)
			replaced, err := EnsureLease(ctx, d, "17", "fp", 30*time.Minute, later)
			if err != nil {
				t.Fatalf("EnsureLease: %v", err)
			}
			if !replaced.ExpiresAt.Equal(later.Add(30 * time.Minute)) {
				t.Fatalf("expired lease should be replaced, got %v", replaced.ExpiresAt)
			}
		})
	}
}

func TestLeaseWireFormat(t *testing.T) {
	ctx := context.Background()
	d := NewMemory()
	if err := SaveLease(ctx, d, "17", "fp", Lease{ExpiresAt: time.UnixMilli(1234)}); err != nil {
		t.Fatal(err)
	}
	raw, _, _ := d.Get(ctx, config.CacheKey.AccessLeaseKey("17", "fp"))
	if raw != `{"expires":1234}` {
		t.Fatalf("unexpected lease record %q", raw)
	}

	_ = d.Set(ctx, config.CacheKey.AccessLeaseKey("17", "fp"), "not json")
	if _, found, err := LoadLease(ctx, d, "17", "fp"); found || err != nil {
		t.Fatalf("corrupt lease should read as absent, found=%v err=%v", found, err)
	}
}

func TestOpen(t *testing.T) {
	d, closeFn, err := Open(config.DeviceStoreMemory, "", nil)
	if err != nil || d == nil {
		t.Fatalf("open memory: %v", err)
	}
	_ = closeFn()

	if _, _, err := Open(config.DeviceStoreRedis, "", nil); err == nil {
		t.Fatal("redis store without client should fail")
	}
	if _, _, err := Open("etcd", "", nil); err == nil {
		t.Fatal("unknown store should fail")
	}
}
