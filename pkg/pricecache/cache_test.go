package pricecache

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TokenRadar/pkg/model"
	"TokenRadar/pkg/monitor"
)

type stubSource struct {
	mu     sync.Mutex
	prices []float64
	errs   []error
	calls  int
}

func (s *stubSource) FetchPrice(_ context.Context, _ string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	if i < len(s.prices) {
		return s.prices[i], nil
	}
	return 0, errors.New("exhausted")
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newCache(src *stubSource, clock *fakeClock) *Cache {
	return New(src, Options{
		AssetID:         "SOL",
		StalenessWindow: 2 * time.Minute,
		Now:             clock.Now,
	})
}

func TestCache_EmptyIsUnavailable(t *testing.T) {
	c := newCache(&stubSource{}, &fakeClock{now: time.Now()})
	_, ok := c.Get()
	assert.False(t, ok)
	assert.ErrorIs(t, c.Probe(context.Background()), model.ErrStalePrice)
}

func TestCache_RefreshThenGet(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := newCache(&stubSource{prices: []float64{150}}, clock)

	require.NoError(t, c.Refresh(context.Background()))

	price, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, 150.0, price)

	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, clock.Now(), snap.ObservedAt)
}

func TestCache_FailedRefreshKeepsPreviousValue(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	src := &stubSource{
		prices: []float64{150, 0},
		errs:   []error{nil, model.ErrTransientFetch},
	}
	c := newCache(src, clock)

	require.NoError(t, c.Refresh(context.Background()))
	clock.Advance(30 * time.Second)

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransientFetch)

	price, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, 150.0, price)

	snap, _ := c.Snapshot()
	assert.Equal(t, clock.Now().Add(-30*time.Second), snap.ObservedAt)
}

func TestCache_NonPositivePriceRejected(t *testing.T) {
	cases := map[string]float64{
		"negative":     -3,
		"zero":         0,
		"nan":          math.NaN(),
		"positive_inf": math.Inf(1),
		"negative_inf": math.Inf(-1),
	}
	for name, price := range cases {
		t.Run(name, func(t *testing.T) {
			c := newCache(&stubSource{prices: []float64{price}}, &fakeClock{now: time.Now()})
			err := c.Refresh(context.Background())
			assert.ErrorIs(t, err, model.ErrTransientFetch)
			_, ok := c.Get()
			assert.False(t, ok)
		})
	}
}

func TestCache_NonFinitePriceKeepsPreviousValue(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newCache(&stubSource{prices: []float64{150, math.Inf(1)}}, clock)
	require.NoError(t, c.Refresh(context.Background()))
	require.Error(t, c.Refresh(context.Background()))

	price, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, 150.0, price)
}

func TestCache_StalenessBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newCache(&stubSource{prices: []float64{150}}, clock)
	require.NoError(t, c.Refresh(context.Background()))

	clock.Advance(2 * time.Minute)
	_, ok := c.Get()
	assert.True(t, ok, "exactly at the window the price is still fresh")

	clock.Advance(time.Millisecond)
	_, ok = c.Get()
	assert.False(t, ok)

	_, ok = c.Snapshot()
	assert.True(t, ok, "snapshot ignores staleness")
}

func TestCache_ReportsToMonitor(t *testing.T) {
	mon := monitor.NewMonitor(nil)
	src := &stubSource{errs: []error{model.ErrTransientFetch}}
	c := New(src, Options{AssetID: "SOL", Monitor: mon})

	_ = c.Refresh(context.Background())

	st, ok := mon.GetStatus(ComponentName)
	require.True(t, ok)
	assert.Equal(t, monitor.StatusDegraded, st.Status)
}

func TestCache_ConcurrentReadersDuringRefresh(t *testing.T) {
	prices := make([]float64, 100)
	for i := range prices {
		prices[i] = float64(i + 1)
	}
	c := New(&stubSource{prices: prices}, Options{AssetID: "SOL"})
	require.NoError(t, c.Refresh(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				v, ok := c.Get()
				assert.True(t, ok)
				assert.Greater(t, v, 0.0)
			}
		}()
	}
	for i := 1; i < len(prices); i++ {
		_ = c.Refresh(context.Background())
	}
	wg.Wait()
}
