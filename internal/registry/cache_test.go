package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func constFetch(v string, calls *atomic.Int32) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestCacheHitAndExpiry(t *testing.T) {
	t.Parallel()

	clock := newStepClock()
	c := NewCache[string](WithTTL(time.Minute), WithClock(clock))
	var calls atomic.Int32

	for range 3 {
		v, err := c.Get(t.Context(), "nginx", constFetch("a", &calls))
		if err != nil || v != "a" {
			t.Fatalf("Get() = %q, %v", v, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}

	clock.Advance(time.Minute)
	if _, ok := c.Lookup("nginx"); ok {
		t.Fatal("Lookup() hit after TTL elapsed")
	}
	if _, err := c.Get(t.Context(), "nginx", constFetch("b", &calls)); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("fetch calls after expiry = %d, want 2", n)
	}
}

func TestCacheErrorsAreNotStored(t *testing.T) {
	t.Parallel()

	c := NewCache[string](WithClock(newStepClock()))
	boom := errors.New("boom")
	_, err := c.Get(t.Context(), "k", func(context.Context) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Get() error = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after failed fetch, want 0", c.Len())
	}
}

func TestCacheSingleFlight(t *testing.T) {
	t.Parallel()

	c := NewCache[string](WithClock(newStepClock()))
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	started := make(chan struct{}, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			if v, err := c.Get(t.Context(), "k", fetch); err != nil || v != "v" {
				t.Errorf("Get() = %q, %v", v, err)
			}
		}()
	}
	for range 10 {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

func TestCacheInvalidateDiscardsInFlightFill(t *testing.T) {
	t.Parallel()

	c := NewCache[string](WithClock(newStepClock()))
	entered := make(chan struct{})
	release := make(chan struct{})
	stale := func(context.Context) (string, error) {
		close(entered)
		<-release
		return "stale", nil
	}

	done := make(chan string, 1)
	go func() {
		v, _ := c.Get(t.Context(), "k", stale)
		done <- v
	}()
	<-entered
	c.Invalidate("k")

	var calls atomic.Int32
	fresh, err := c.Get(t.Context(), "k", constFetch("fresh", &calls))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fresh != "fresh" || calls.Load() != 1 {
		t.Fatalf("Get() after invalidate = %q (calls %d), want a new fetch", fresh, calls.Load())
	}

	close(release)
	if v := <-done; v != "stale" {
		t.Fatalf("in-flight caller got %q, want stale", v)
	}
	if v, ok := c.Lookup("k"); !ok || v != "fresh" {
		t.Fatalf("Lookup() = %q, %v, want fresh", v, ok)
	}
}

func TestCacheInvalidateAll(t *testing.T) {
	t.Parallel()

	c := NewCache[string](WithClock(newStepClock()))
	var calls atomic.Int32
	for _, k := range []string{"a", "b"} {
		if _, err := c.Get(t.Context(), k, constFetch(k, &calls)); err != nil {
			t.Fatalf("Get(%s) error = %v", k, err)
		}
	}
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after InvalidateAll", c.Len())
	}
}

func TestCacheBounded(t *testing.T) {
	t.Parallel()

	clock := newStepClock()
	c := NewCache[string](WithClock(clock), WithMaxEntries(2))
	var calls atomic.Int32
	for _, k := range []string{"a", "b", "c"} {
		if _, err := c.Get(t.Context(), k, constFetch(k, &calls)); err != nil {
			t.Fatalf("Get(%s) error = %v", k, err)
		}
		clock.Advance(time.Second)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Lookup("a"); ok {
		t.Fatal("oldest entry survived eviction")
	}
}

func TestCacheCallerCancellation(t *testing.T) {
	t.Parallel()

	c := NewCache[string](WithClock(newStepClock()))
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := c.Get(ctx, "k", func(context.Context) (string, error) {
		<-release
		return "v", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Get() error = %v, want canceled", err)
	}
}
