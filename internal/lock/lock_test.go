package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

// exerciseMutualExclusion runs n goroutines that increment a counter under the
// lock with a deliberate read-sleep-write gap.
func exerciseMutualExclusion(t *testing.T, l Locker, n int) {
	t.Helper()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), SessionKey("s1"))
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != n {
		t.Errorf("counter = %d, want %d", counter, n)
	}
}

func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal()
	exerciseMutualExclusion(t, l, 20)
	if l.held() != 0 {
		t.Errorf("expected all entries released, %d left", l.held())
	}
}

func TestLocalIndependentKeys(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock b should not wait for a: %v", err)
	}
	unlockB()
}

func TestLocalContextCancel(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	unlock()
	unlock() // second call is a no-op
	if l.held() != 0 {
		t.Errorf("expected no entries, got %d", l.held())
	}
}

func TestRedisMutualExclusion(t *testing.T) {
	_, client := setupTestRedis(t)
	r := NewRedis(client, time.Second)
	r.retry = time.Millisecond
	exerciseMutualExclusion(t, r, 10)
}

func TestRedisReleaseChecksToken(t *testing.T) {
	mr, client := setupTestRedis(t)
	r := NewRedis(client, time.Second)
	r.retry = time.Millisecond

	unlock, err := r.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !mr.Exists(keyPrefix + "k") {
		t.Fatal("lock key should exist")
	}

	// Simulate expiry and takeover by another holder.
	mr.FastForward(2 * time.Second)
	if err := mr.Set(keyPrefix+"k", "other-holder"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	unlock()

	got, err := mr.Get(keyPrefix + "k")
	if err != nil || got != "other-holder" {
		t.Errorf("stale unlock removed another holder's lock: %q, %v", got, err)
	}
}

func TestRedisContextCancel(t *testing.T) {
	_, client := setupTestRedis(t)
	r := NewRedis(client, time.Minute)
	r.retry = time.Millisecond

	unlock, err := r.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestNewRedisFromURL(t *testing.T) {
	mr, _ := setupTestRedis(t)
	r, err := NewRedisFromURL(context.Background(), "redis://"+mr.Addr(), 0)
	if err != nil {
		t.Fatalf("NewRedisFromURL: %v", err)
	}
	defer r.Close()
	if r.ttl != 30*time.Second {
		t.Errorf("default ttl = %v", r.ttl)
	}

	if _, err := NewRedisFromURL(context.Background(), "not a url", 0); err == nil {
		t.Error("expected parse error")
	}
}
