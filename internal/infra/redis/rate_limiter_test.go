//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockCounter struct {
	counts     map[string]int64
	expireKeys []string
	IncrErr    error
}

func (m *mockCounter) Incr(_ context.Context, key string) (int64, error) {
	if m.IncrErr != nil {
		return 0, m.IncrErr
	}
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *mockCounter) Expire(_ context.Context, key string, _ time.Duration) error {
	m.expireKeys = append(m.expireKeys, key)
	return nil
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("should allow up to the limit and set expiry once", func(t *testing.T) {
		m := &mockCounter{}
		rl := NewRateLimiter(m, 3, time.Minute)
		key := UserCommandKey(1, "msg")
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, key)
			if err != nil || !ok {
				t.Fatalf("call %d rejected: %v", i, err)
			}
		}
		if ok, _ := rl.Allow(ctx, key); ok {
			t.Fatal("fourth call should be limited")
		}
		if len(m.expireKeys) != 1 {
			t.Errorf("expected one Expire call, got %d", len(m.expireKeys))
		}
	})

	t.Run("should pass through when limit is disabled", func(t *testing.T) {
		rl := NewRateLimiter(&mockCounter{IncrErr: errors.New("down")}, 0, time.Minute)
		if ok, err := rl.Allow(ctx, "k"); !ok || err != nil {
			t.Fatal("disabled limiter should allow")
		}
	})

	t.Run("should surface backend errors", func(t *testing.T) {
		rl := NewRateLimiter(&mockCounter{IncrErr: errors.New("down")}, 5, time.Minute)
		if _, err := rl.Allow(ctx, "k"); err == nil {
			t.Fatal("expected error")
		}
	})
}
