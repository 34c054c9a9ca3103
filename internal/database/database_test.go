package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
)

func TestConnectRedisOnly(t *testing.T) {
	mr := miniredis.RunT(t)

	conns, err := Connect(context.Background(), &config.Config{
		DeviceStore: config.DeviceStoreRedis,
		RedisURL:    "redis://" + mr.Addr() + "/0",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conns.Close()

	if conns.Postgres != nil {
		t.Fatal("postgres opened without audit")
	}
	if err := conns.Redis.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Fatalf("miniredis value = %q", got)
	}
}

func TestConnectNothing(t *testing.T) {
	conns, err := Connect(context.Background(), &config.Config{DeviceStore: config.DeviceStoreMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conns.Redis != nil || conns.Postgres != nil {
		t.Fatalf("unexpected connections: %+v", conns)
	}
	if err := conns.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConnectErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Connect(ctx, &config.Config{DeviceStore: config.DeviceStoreRedis, RedisURL: "not a url"}, zerolog.Nop()); err == nil {
		t.Fatal("expected parse error")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := Connect(ctx, &config.Config{DeviceStore: config.DeviceStoreRedis, RedisURL: "redis://" + addr}, zerolog.Nop()); err == nil {
		t.Fatal("expected ping error")
	}

	live := miniredis.RunT(t)
	_, err := Connect(ctx, &config.Config{
		AuditEnabled: true,
		RedisURL:     "redis://" + live.Addr(),
		DatabaseURL:  "::not-a-dsn::",
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected database URL error")
	}
}

func TestAuditPoolConfig(t *testing.T) {
	cfg, err := auditPoolConfig(&config.Config{
		DatabaseURL: "postgres://u:p@db:5432/audit?sslmode=disable",
		MaxDBConns:  3,
	})
	if err != nil {
		t.Fatalf("auditPoolConfig: %v", err)
	}
	if cfg.MaxConns != 3 {
		t.Errorf("MaxConns = %d, want 3", cfg.MaxConns)
	}
	if cfg.ConnConfig.Database != "audit" || cfg.ConnConfig.Host != "db" {
		t.Errorf("conn config = %s@%s", cfg.ConnConfig.Database, cfg.ConnConfig.Host)
	}
	if cfg.ConnConfig.RuntimeParams["application_name"] != "exstem-player-audit" {
		t.Errorf("application_name = %q", cfg.ConnConfig.RuntimeParams["application_name"])
	}

	unset, err := auditPoolConfig(&config.Config{DatabaseURL: "postgres://u:p@db:5432/audit"})
	if err != nil {
		t.Fatalf("auditPoolConfig: %v", err)
	}
	if unset.MaxConns <= 0 {
		t.Errorf("default MaxConns = %d", unset.MaxConns)
	}
}

func TestNeedsRedis(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		want bool
	}{
		{config.Config{DeviceStore: config.DeviceStoreMemory}, false},
		{config.Config{DeviceStore: config.DeviceStoreSQLite}, false},
		{config.Config{DeviceStore: config.DeviceStoreRedis}, true},
		{config.Config{DeviceStore: config.DeviceStoreMemory, AuditEnabled: true}, true},
	}
	for _, tt := range tests {
		if got := NeedsRedis(&tt.cfg); got != tt.want {
			t.Errorf("NeedsRedis(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
