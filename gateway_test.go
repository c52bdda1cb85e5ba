package dramabox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaguanLabs/dramabox/cache"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryShared is an in-process SharedCache used to exercise the second tier.
type memoryShared struct {
	mu     sync.Mutex
	data   map[string][]byte
	sets   int
	failOn bool
}

func newMemoryShared() *memoryShared {
	return &memoryShared{data: make(map[string][]byte)}
}

func (m *memoryShared) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memoryShared) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn {
		return errors.New("shared tier unavailable")
	}
	m.sets++
	m.data[key] = value
	return nil
}

func counting(calls *int64, body string) Producer {
	return func(ctx context.Context) (json.RawMessage, error) {
		atomic.AddInt64(calls, 1)
		return json.RawMessage(body), nil
	}
}

func TestGateway_ProducerNotCalledOnHit(t *testing.T) {
	gw := NewGateway(cache.NewDefaultRegistry())
	var calls int64

	for i := 0; i < 2; i++ {
		if _, _, err := gw.WithCache(context.Background(), cache.ForYou, "foryou?lang=en", counting(&calls, `[]`)); err != nil {
			t.Fatalf("WithCache failed: %v", err)
		}
	}

	if calls != 1 {
		t.Errorf("Expected producer to run once, got %d", calls)
	}
}

func TestGateway_DetailScenario(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	registry := cache.NewRegistry([]cache.Config{
		{Type: cache.Detail, Options: cache.Options{Capacity: 500, TTL: 600000 * time.Millisecond, AllowStale: true}},
	}, cache.WithClock(clock.Now))
	gw := NewGateway(registry)

	var calls int64
	fetch := counting(&calls, `{"title":"X"}`)
	ctx := context.Background()

	val, status, err := gw.WithCache(ctx, cache.Detail, "bookId=42", fetch)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if string(val) != `{"title":"X"}` || status != cache.Miss || calls != 1 {
		t.Fatalf("first call: val=%s status=%v calls=%d", val, status, calls)
	}

	val, status, _ = gw.WithCache(ctx, cache.Detail, "bookId=42", fetch)
	if string(val) != `{"title":"X"}` || status != cache.Hit || calls != 1 {
		t.Fatalf("second call: val=%s status=%v calls=%d", val, status, calls)
	}

	clock.Advance(600000*time.Millisecond + time.Millisecond)

	// The detail cache serves the expired value once before refetching.
	val, status, _ = gw.WithCache(ctx, cache.Detail, "bookId=42", fetch)
	if status != cache.Stale || string(val) != `{"title":"X"}` || calls != 1 {
		t.Fatalf("stale call: val=%s status=%v calls=%d", val, status, calls)
	}

	_, status, _ = gw.WithCache(ctx, cache.Detail, "bookId=42", fetch)
	if status != cache.Miss || calls != 2 {
		t.Fatalf("after expiry: status=%v calls=%d, want MISS and 2", status, calls)
	}
}

func TestGateway_ExpiredWithoutStaleRefetches(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	gw := NewGateway(cache.NewDefaultRegistry(cache.WithClock(clock.Now)))
	var calls int64
	ctx := context.Background()

	gw.WithCache(ctx, cache.Search, "search?query=ceo", counting(&calls, `[]`))
	clock.Advance(2*time.Minute + time.Second)
	gw.WithCache(ctx, cache.Search, "search?query=ceo", counting(&calls, `[]`))

	if calls != 2 {
		t.Errorf("Expected 2 producer calls, got %d", calls)
	}
}

func TestGateway_ErrorNotCached(t *testing.T) {
	gw := NewGateway(cache.NewDefaultRegistry())
	upstreamErr := &UpstreamError{Endpoint: "detail", Status: 502}
	var calls int64

	failing := func(ctx context.Context) (json.RawMessage, error) {
		atomic.AddInt64(&calls, 1)
		return nil, upstreamErr
	}

	for i := 0; i < 2; i++ {
		_, _, err := gw.WithCache(context.Background(), cache.Detail, "k", failing)
		if !errors.Is(err, upstreamErr) {
			t.Fatalf("Expected upstream error, got %v", err)
		}
	}

	if calls != 2 {
		t.Errorf("Failures must not be cached; expected 2 calls, got %d", calls)
	}
	if c, _ := gw.Registry().Get(cache.Detail); c.Len() != 0 {
		t.Error("nothing should be cached on failure")
	}
}

func TestGateway_UnknownCacheType(t *testing.T) {
	gw := NewGateway(cache.NewDefaultRegistry())
	var calls int64

	_, _, err := gw.WithCache(context.Background(), cache.Type("bogus"), "k", counting(&calls, `{}`))

	var cacheErr *CacheError
	if !errors.As(err, &cacheErr) {
		t.Fatalf("Expected CacheError, got %v", err)
	}
	if calls != 0 {
		t.Error("producer should not run for unknown cache type")
	}
}

func TestGateway_CoalescesConcurrentMisses(t *testing.T) {
	gw := NewGateway(cache.NewDefaultRegistry())
	var calls int64
	release := make(chan struct{})

	slow := func(ctx context.Context) (json.RawMessage, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return json.RawMessage(`{"ok":true}`), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, _, err := gw.WithCache(context.Background(), cache.Trending, "trending?lang=en", slow)
			if err != nil || string(val) != `{"ok":true}` {
				t.Errorf("unexpected result %s, %v", val, err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("Expected a single producer call, got %d", calls)
	}
}

func TestGateway_LeaderCancelDoesNotFailFollowers(t *testing.T) {
	gw := NewGateway(cache.NewDefaultRegistry())
	var calls int64
	started := make(chan struct{})
	release := make(chan struct{})

	slow := func(ctx context.Context) (json.RawMessage, error) {
		atomic.AddInt64(&calls, 1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"ok":true}`), nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := gw.WithCache(leaderCtx, cache.Detail, "detail?bookId=42", slow)
		leaderErr <- err
	}()
	<-started

	type result struct {
		val json.RawMessage
		err error
	}
	follower := make(chan result, 1)
	go func() {
		val, _, err := gw.WithCache(context.Background(), cache.Detail, "detail?bookId=42", slow)
		follower <- result{val, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the leader to see its own cancellation, got %v", err)
	}

	close(release)
	got := <-follower
	if got.err != nil {
		t.Fatalf("Follower failed: %v", got.err)
	}
	if string(got.val) != `{"ok":true}` {
		t.Errorf("Expected the shared value, got %s", got.val)
	}
	if calls != 1 {
		t.Errorf("Expected a single producer call, got %d", calls)
	}

	c, _ := gw.Registry().Get(cache.Detail)
	if _, ok := c.Get("detail?bookId=42"); !ok {
		t.Error("Expected the flight result to be cached after the leader left")
	}
}

func TestGateway_CallerCancelStopsWaiting(t *testing.T) {
	gw := NewGateway(cache.NewDefaultRegistry())
	release := make(chan struct{})
	defer close(release)

	blocked := func(ctx context.Context) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`[]`), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, status, err := gw.WithCache(ctx, cache.ForYou, "foryou?lang=en", blocked)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if status != cache.Miss {
		t.Errorf("Expected MISS, got %v", status)
	}
}

func TestGateway_WithoutCoalescing(t *testing.T) {
	gw := NewGateway(cache.NewDefaultRegistry(), WithCoalescing(false))
	const n = 4
	var calls int64
	var started sync.WaitGroup
	started.Add(n)

	// Every caller must reach the producer before any of them completes.
	barrier := func(ctx context.Context) (json.RawMessage, error) {
		atomic.AddInt64(&calls, 1)
		started.Done()
		started.Wait()
		return json.RawMessage(`[]`), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gw.WithCache(context.Background(), cache.ForYou, "foryou", barrier)
		}()
	}
	wg.Wait()

	if calls != n {
		t.Errorf("Expected %d independent producer calls, got %d", n, calls)
	}
}

func TestGateway_SharedCache(t *testing.T) {
	shared := newMemoryShared()
	ctx := context.Background()
	var calls int64

	first := NewGateway(cache.NewDefaultRegistry(), WithSharedCache(shared))
	if _, _, err := first.WithCache(ctx, cache.Detail, "detail?bookId=1", counting(&calls, `{"a":1}`)); err != nil {
		t.Fatalf("WithCache failed: %v", err)
	}
	if shared.sets != 1 {
		t.Fatalf("Expected shared tier write, got %d", shared.sets)
	}
	if _, ok := shared.data["detail:detail?bookId=1"]; !ok {
		t.Errorf("Unexpected shared keys: %v", shared.data)
	}

	// A second instance with an empty L1 is served by the shared tier.
	second := NewGateway(cache.NewDefaultRegistry(), WithSharedCache(shared))
	val, _, err := second.WithCache(ctx, cache.Detail, "detail?bookId=1", counting(&calls, `{"a":2}`))
	if err != nil {
		t.Fatalf("WithCache failed: %v", err)
	}
	if string(val) != `{"a":1}` || calls != 1 {
		t.Errorf("Expected shared value without producer call, got %s (calls=%d)", val, calls)
	}
	if c, _ := second.Registry().Get(cache.Detail); !c.Has("detail?bookId=1") {
		t.Error("shared hit should populate the local cache")
	}
}

func TestGateway_SharedCacheWriteFailureIgnored(t *testing.T) {
	shared := newMemoryShared()
	shared.failOn = true
	gw := NewGateway(cache.NewDefaultRegistry(), WithSharedCache(shared))
	var calls int64

	val, _, err := gw.WithCache(context.Background(), cache.ForYou, "k", counting(&calls, `[1]`))
	if err != nil {
		t.Fatalf("shared tier failure should be ignored, got %v", err)
	}
	if string(val) != `[1]` {
		t.Errorf("Unexpected value %s", val)
	}
}
