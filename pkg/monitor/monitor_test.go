package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_AlertOnlyOnTransitionToUnhealthy(t *testing.T) {
	var (
		mu     sync.Mutex
		alerts []string
	)
	m := NewMonitor(func(component, status, message string) {
		mu.Lock()
		defer mu.Unlock()
		alerts = append(alerts, component+":"+status)
	})

	m.RegisterComponent("price")
	m.UpdateStatus("price", StatusHealthy, "")
	m.Report("price", errors.New("timeout"))
	m.Report("price", errors.New("timeout again"))
	m.Report("price", nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"price:degraded"}, alerts)

	st, ok := m.GetStatus("price")
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, st.Status)
	assert.Empty(t, st.Message)
}

func TestMonitor_GetAllStatusSorted(t *testing.T) {
	m := NewMonitor(nil)
	m.UpdateStatus("screening", StatusHealthy, "")
	m.UpdateStatus("events", StatusHealthy, "")
	m.RegisterComponent("price")

	all := m.GetAllStatus()
	require.Len(t, all, 3)
	assert.Equal(t, "events", all[0].Component)
	assert.Equal(t, "price", all[1].Component)
	assert.Equal(t, StatusUnknown, all[1].Status)
	assert.Equal(t, "screening", all[2].Component)
}

func TestMonitor_StartChecking(t *testing.T) {
	m := NewMonitor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.StartChecking(ctx, "freshness", 10*time.Millisecond, StatusUnhealthy, func(context.Context) error {
		return errors.New("down")
	})

	require.Eventually(t, func() bool {
		st, _ := m.GetStatus("freshness")
		return st.Status == StatusUnhealthy
	}, time.Second, 10*time.Millisecond)
}

func TestMonitor_ReportAs(t *testing.T) {
	var alerts []string
	m := NewMonitor(func(component, status, _ string) {
		alerts = append(alerts, component+"="+status)
	})

	m.Report("a", errors.New("slow"))
	m.ReportAs("b", errors.New("stale"), StatusUnhealthy)
	m.ReportAs("b", nil, StatusUnhealthy)

	st, _ := m.GetStatus("a")
	assert.Equal(t, StatusDegraded, st.Status)
	st, _ = m.GetStatus("b")
	assert.Equal(t, StatusHealthy, st.Status)
	assert.Empty(t, st.Message)
	assert.Equal(t, []string{"a=degraded", "b=unhealthy"}, alerts)
}

func TestMonitor_NilSafe(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.RegisterComponent("x")
		m.UpdateStatus("x", StatusHealthy, "")
		m.Report("x", nil)
		m.ReportAs("x", nil, StatusUnhealthy)
		m.StartChecking(context.Background(), "x", time.Second, StatusUnhealthy, nil)
	})
	_, ok := m.GetStatus("x")
	assert.False(t, ok)
	assert.Nil(t, m.GetAllStatus())
}
