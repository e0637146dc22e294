package governor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestGovernor_TripsAboveThreshold(t *testing.T) {
	clk := newClock()
	var trips []int
	g := New(12, time.Second, WithClock(clk.Now), WithTripHook(func(n int) { trips = append(trips, n) }))

	for i := 0; i < 12; i++ {
		require.True(t, g.Record(), "update %d", i+1)
		clk.Advance(10 * time.Millisecond)
	}
	assert.False(t, g.Suspended())

	assert.False(t, g.Record())
	assert.True(t, g.Suspended())
	assert.Equal(t, []int{13}, trips)

	// further updates in the same window do not trip again
	g.Record()
	assert.Len(t, trips, 1)
	assert.Equal(t, 1, g.Trips())
}

func TestGovernor_RecoversAfterQuietWindow(t *testing.T) {
	clk := newClock()
	recovered := 0
	g := New(3, time.Second, WithClock(clk.Now), WithRecoverHook(func() { recovered++ }))

	for range 5 {
		g.Record()
	}
	require.True(t, g.Suspended())

	// next window still busy: stays tripped
	clk.Advance(time.Second)
	for range 5 {
		g.Record()
	}
	assert.True(t, g.Suspended())

	// the busy window completes; the governor still remembers it
	clk.Advance(time.Second)
	assert.True(t, g.Suspended())

	// a quiet window completes
	g.Record()
	clk.Advance(time.Second)
	assert.False(t, g.Suspended())
	assert.Equal(t, 1, recovered)
}

func TestGovernor_IdleGapRecovers(t *testing.T) {
	clk := newClock()
	g := New(2, time.Second, WithClock(clk.Now))
	for range 4 {
		g.Record()
	}
	require.True(t, g.Suspended())

	clk.Advance(5 * time.Second)
	assert.False(t, g.Suspended())
}

func TestGovernor_Reset(t *testing.T) {
	clk := newClock()
	recovered := 0
	g := New(1, time.Second, WithClock(clk.Now), WithRecoverHook(func() { recovered++ }))
	g.Record()
	g.Record()
	require.True(t, g.Suspended())

	g.Reset()
	assert.False(t, g.Suspended())
	assert.True(t, g.Record())
	assert.Equal(t, 1, recovered)
}

func TestGovernor_Defaults(t *testing.T) {
	g := New(0, 0)
	assert.Equal(t, DefaultThreshold, g.threshold)
	assert.Equal(t, DefaultWindow, g.window)
}
