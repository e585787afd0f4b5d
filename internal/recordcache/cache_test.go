package recordcache

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
)

var errMissing = errors.New("missing")

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
	gets    int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := s.data[key]
	if !ok {
		return nil, errMissing
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func isMissing(err error) bool { return errors.Is(err, errMissing) }

var tokenReq = extract.Request{
	Context:     "Sentence",
	Annotations: map[string]extract.FieldRequest{"Token": {Fields: []string{"term"}}},
}

func TestGetOrCompute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemStore(), isMissing, time.Minute, m)
	ctx := context.Background()

	calls := 0
	compute := func() ([]json.RawMessage, error) {
		calls++
		return []json.RawMessage{json.RawMessage(`{"seq":0}`)}, nil
	}

	got, hit, err := c.GetOrCompute(ctx, "doc-1", "v1", tokenReq, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, got, 1)

	got, hit, err = c.GetOrCompute(ctx, "doc-1", "v1", tokenReq, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"seq":0}`, string(got[0]))
	assert.Equal(t, 1, calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c := New(newMemStore(), isMissing, time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "doc-1", "v1", tokenReq, func() ([]json.RawMessage, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), "doc-1", "v1", tokenReq)
	assert.False(t, ok)
}

func TestStoreFailureIsAMiss(t *testing.T) {
	store := newMemStore()
	store.failGet = true
	c := New(store, isMissing, time.Minute, nil)
	_, ok := c.Get(context.Background(), "doc-1", "v1", tokenReq)
	assert.False(t, ok)
}

func TestBreakerBypassesFailingStore(t *testing.T) {
	store := newMemStore()
	store.failGet = true
	c := New(store, isMissing, time.Minute, nil).
		WithBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, ok := c.Get(ctx, "doc-1", "v1", tokenReq)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, store.gets)
	assert.Equal(t, resilience.StateOpen, c.breaker.State())
}

func TestBreakerIgnoresMisses(t *testing.T) {
	store := newMemStore()
	c := New(store, isMissing, time.Minute, nil).
		WithBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	for i := 0; i < 3; i++ {
		_, ok := c.Get(context.Background(), "doc-1", "v1", tokenReq)
		assert.False(t, ok)
	}
	assert.Equal(t, 3, store.gets)
	assert.Equal(t, resilience.StateClosed, c.breaker.State())
}

func TestConcurrentComputeIsCollapsed(t *testing.T) {
	c := New(newMemStore(), isMissing, time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() ([]json.RawMessage, error) {
		calls.Add(1)
		<-release
		return []json.RawMessage{json.RawMessage(`1`)}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "doc-1", "v1", tokenReq, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(4))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestNewVersionReplacesOld(t *testing.T) {
	store := newMemStore()
	c := New(store, isMissing, time.Minute, nil)
	ctx := context.Background()
	batchesOf := func(v string) func() ([]json.RawMessage, error) {
		return func() ([]json.RawMessage, error) {
			return []json.RawMessage{json.RawMessage(`"` + v + `"`)}, nil
		}
	}
	otherReq := extract.Request{Context: "document"}

	_, _, err := c.GetOrCompute(ctx, "doc-1", "v1", tokenReq, batchesOf("v1"))
	require.NoError(t, err)
	_, _, err = c.GetOrCompute(ctx, "doc-1", "v1", otherReq, batchesOf("other"))
	require.NoError(t, err)
	_, _, err = c.GetOrCompute(ctx, "doc-2", "v1", tokenReq, batchesOf("doc-2"))
	require.NoError(t, err)

	got, hit, err := c.GetOrCompute(ctx, "doc-1", "v2", tokenReq, batchesOf("v2"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.JSONEq(t, `"v2"`, string(got[0]))

	_, ok := c.Get(ctx, "doc-1", "v1", tokenReq)
	assert.False(t, ok, "superseded version is dropped")
	_, ok = c.Get(ctx, "doc-1", "v2", tokenReq)
	assert.True(t, ok)
	_, ok = c.Get(ctx, "doc-1", "v1", otherReq)
	assert.True(t, ok, "other requests keep their entries")
	_, ok = c.Get(ctx, "doc-2", "v1", tokenReq)
	assert.True(t, ok)
}

func TestBuildKey(t *testing.T) {
	a := BuildKey("doc-1", "v1", tokenReq)
	b := BuildKey("doc-1", "v1", extract.Request{
		Context:     "Sentence",
		Annotations: map[string]extract.FieldRequest{"Token": {Fields: []string{"term", "term"}}},
	})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, BuildKey("doc-2", "v1", tokenReq))
	assert.NotEqual(t, a, BuildKey("doc-1", "v2", tokenReq))
	assert.Regexp(t, `^records:doc-1:v1:[0-9a-f]{32}$`, a)
}
