package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zend/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type brokenStore struct{}

func (brokenStore) Get(string) (Entry, bool, error) { return Entry{}, false, errors.New("disk gone") }
func (brokenStore) Put(Entry) error                 { return errors.New("disk gone") }
func (brokenStore) Delete(string) error             { return errors.New("disk gone") }

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []domain.CacheOutcome
}

func (m *recordingMetrics) ObserveRoute(domain.RouteMetric)                        {}
func (m *recordingMetrics) ObserveFallback(string)                                 {}
func (m *recordingMetrics) ObserveProbe(string, domain.HealthState, time.Duration) {}
func (m *recordingMetrics) SetSystemHealth(domain.SystemState)                     {}
func (m *recordingMetrics) ObserveAuditDropped()                                   {}
func (m *recordingMetrics) ObserveAuditWrite(error)                                {}
func (m *recordingMetrics) SetAuditQueueDepth(int)                                 {}
func (m *recordingMetrics) ObserveCache(_ string, outcome domain.CacheOutcome) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, outcome)
	m.mu.Unlock()
}

func counter(calls *atomic.Int32, payload string) ComputeFunc {
	return func(context.Context) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(payload), nil
	}
}

func TestCache_HitWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(Options{Now: clock.Now})
	var calls atomic.Int32

	first, err := c.GetOrCompute(context.Background(), domain.CacheKeyTools, counter(&calls, `["a"]`))
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := c.GetOrCompute(context.Background(), domain.CacheKeyTools, counter(&calls, `["b"]`))
	require.NoError(t, err)

	assert.JSONEq(t, `["a"]`, string(first))
	assert.JSONEq(t, `["a"]`, string(second))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_ExpiryRecomputes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(Options{Now: clock.Now})
	var calls atomic.Int32

	_, err := c.GetOrCompute(context.Background(), "k", counter(&calls, `1`))
	require.NoError(t, err)
	clock.Advance(domain.CacheTTL - time.Millisecond)
	got, err := c.GetOrCompute(context.Background(), "k", counter(&calls, `2`))
	require.NoError(t, err)
	assert.Equal(t, `1`, string(got))

	clock.Advance(time.Millisecond)
	got, err = c.GetOrCompute(context.Background(), "k", counter(&calls, `2`))
	require.NoError(t, err)
	assert.Equal(t, `2`, string(got))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_CoalescesConcurrentMisses(t *testing.T) {
	c := New(Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (json.RawMessage, error) {
		calls.Add(1)
		<-release
		return json.RawMessage(`"v"`), nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := c.GetOrCompute(context.Background(), "k", fn)
			if err == nil {
				results[i] = string(value)
			}
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, value := range results {
		assert.Equal(t, `"v"`, value)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := New(Options{})
	boom := errors.New("boom")

	_, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (json.RawMessage, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	var calls atomic.Int32
	got, err := c.GetOrCompute(context.Background(), "k", counter(&calls, `"ok"`))
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(got))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_StoreFailureStillReturnsValue(t *testing.T) {
	metrics := &recordingMetrics{}
	c := New(Options{Store: brokenStore{}, Metrics: metrics})
	var calls atomic.Int32

	got, err := c.GetOrCompute(context.Background(), "k", counter(&calls, `{"x":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(got))
	assert.Contains(t, metrics.outcomes, domain.CacheUnavailable)
}

func TestCache_ComputeTimeout(t *testing.T) {
	c := New(Options{ComputeTimeout: 20 * time.Millisecond})
	_, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCache_Invalidate(t *testing.T) {
	c := New(Options{})
	var calls atomic.Int32
	_, err := c.GetOrCompute(context.Background(), "k", counter(&calls, `1`))
	require.NoError(t, err)
	c.Invalidate("k")
	_, err = c.GetOrCompute(context.Background(), "k", counter(&calls, `1`))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBoltStore_RoundTripAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "zend.db")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)

	inserted := time.Unix(1_700_000_000, 0).UTC()
	require.NoError(t, store.Put(Entry{Key: "k", Value: json.RawMessage(`{"a":1}`), InsertedAt: inserted, TTL: domain.CacheTTL}))
	require.NoError(t, store.Close())

	store, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	entry, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(entry.Value))
	assert.True(t, entry.InsertedAt.Equal(inserted))
	assert.Equal(t, domain.CacheTTL, entry.TTL)

	require.NoError(t, store.Delete("k"))
	_, ok, err = store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltStore_ClosedIsUnavailable(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "zend.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.Get("k")
	require.ErrorIs(t, err, ErrStoreClosed)

	c := New(Options{Store: store})
	var calls atomic.Int32
	got, err := c.GetOrCompute(context.Background(), "k", counter(&calls, `true`))
	require.NoError(t, err)
	assert.Equal(t, `true`, string(got))
}
