package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func testKey(t *testing.T) string {
	return fmt.Sprintf("rl-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestLimiter_AllowSequence(t *testing.T) {
	rdb := testRedis(t)
	l := New(rdb, 3, time.Minute)
	ctx := context.Background()
	key := testKey(t)
	t.Cleanup(func() { rdb.Del(ctx, "rate_limit:"+key) })

	want := []bool{true, true, true, false}
	for i, expected := range want {
		got, err := l.Allow(ctx, key)
		if err != nil {
			t.Fatalf("Allow() call %d error = %v", i+1, err)
		}
		if got != expected {
			t.Errorf("Allow() call %d = %v, want %v", i+1, got, expected)
		}
	}
}

func TestLimiter_RejectedAttemptsStillCount(t *testing.T) {
	rdb := testRedis(t)
	l := New(rdb, 2, time.Minute)
	ctx := context.Background()
	key := testKey(t)
	t.Cleanup(func() { rdb.Del(ctx, "rate_limit:"+key) })

	for i := 0; i < 5; i++ {
		_, _ = l.Allow(ctx, key)
	}

	count, err := rdb.Get(ctx, "rate_limit:"+key).Int64()
	if err != nil {
		t.Fatalf("Get counter error = %v", err)
	}
	if count != 5 {
		t.Errorf("counter = %d, want 5 (rejections must still increment)", count)
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	rdb := testRedis(t)
	l := New(rdb, 1, time.Second)
	ctx := context.Background()
	key := testKey(t)
	t.Cleanup(func() { rdb.Del(ctx, "rate_limit:"+key) })

	if ok, _ := l.Allow(ctx, key); !ok {
		t.Fatal("first Allow() = false, want true")
	}
	if ok, _ := l.Allow(ctx, key); ok {
		t.Fatal("second Allow() = true, want false")
	}

	time.Sleep(1100 * time.Millisecond)

	ok, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow() after window error = %v", err)
	}
	if !ok {
		t.Error("Allow() after window = false, want true (fresh count)")
	}
	count, _ := rdb.Get(ctx, "rate_limit:"+key).Int64()
	if count != 1 {
		t.Errorf("counter after reset = %d, want 1", count)
	}
}

func TestLimiter_IndependentKeys(t *testing.T) {
	rdb := testRedis(t)
	l := New(rdb, 1, time.Minute)
	ctx := context.Background()
	keyA := testKey(t) + "-a"
	keyB := testKey(t) + "-b"
	t.Cleanup(func() {
		rdb.Del(ctx, "rate_limit:"+keyA, "rate_limit:"+keyB)
	})

	_, _ = l.Allow(ctx, keyA)
	if ok, _ := l.Allow(ctx, keyA); ok {
		t.Error("keyA second Allow() = true, want false")
	}
	if ok, _ := l.Allow(ctx, keyB); !ok {
		t.Error("keyB first Allow() = false, want true")
	}
}
