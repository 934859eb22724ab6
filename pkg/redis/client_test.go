package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.SetNX(ctx, client.LockKey("demand-rollups"), "owner-a", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected first setnx to succeed")
	}
	ok, err = client.SetNX(ctx, client.LockKey("demand-rollups"), "owner-b", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected second setnx to fail")
	}
	owner, err := client.Get(ctx, client.LockKey("demand-rollups"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if owner != "owner-a" {
		t.Fatalf("expected owner-a, got %q", owner)
	}
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.DealerTrustKey("dealer-1")
	if err := client.Set(ctx, key, 82, time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "82" {
		t.Fatalf("expected 82, got %q", got)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if _, err := client.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on nil raw should be a no-op: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "fs:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.LockKey("stockout-alerts"); got != "fs:lock:stockout-alerts" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.DealerTrustKey("d1"); got != "fs:dealer_trust:d1" {
		t.Fatalf("unexpected trust key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "fs:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	staging := &Client{namespace: "fs-staging"}
	if got := staging.LockKey("pipeline"); got != "fs-staging:lock:pipeline" {
		t.Fatalf("unexpected namespaced key %s", got)
	}
}

func TestCompareAndDeleteOnlyRemovesOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("pipeline")
	mock.data[key] = "cron-a:1"

	deleted, err := client.CompareAndDelete(ctx, key, "cron-b:2")
	if err != nil || deleted {
		t.Fatalf("expected foreign owner to be refused, deleted=%v err=%v", deleted, err)
	}
	deleted, err = client.CompareAndDelete(ctx, key, "cron-a:1")
	if err != nil || !deleted {
		t.Fatalf("expected owner delete, deleted=%v err=%v", deleted, err)
	}
	if _, ok := mock.data[key]; ok {
		t.Fatal("lock still present after owner delete")
	}
}

func TestGetManySkipsMisses(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	hit := client.DealerTrustKey("d1")
	miss := client.DealerTrustKey("d2")
	mock.data[hit] = "64"

	got, err := client.GetMany(ctx, []string{hit, miss})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(got) != 1 || got[hit] != "64" {
		t.Fatalf("unexpected hits %v", got)
	}
	if !IsMiss(redis.Nil) {
		t.Fatal("redis.Nil should be a miss")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2, PoolSize: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 5 {
		t.Fatalf("unexpected options %+v", opts)
	}
	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 1 {
		t.Fatalf("unexpected parsed options %+v", opts)
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	values := make([]any, len(keys))
	for i, key := range keys {
		if v, ok := m.data[key]; ok {
			values[i] = v
		}
	}
	return redis.NewSliceResult(values, nil)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if len(keys) == 1 && len(args) == 1 && m.data[keys[0]] == args[0] {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}
