package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmcdole/crate/internal/domain"
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

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(nil,
		WithClock(clock.Now),
		WithRetention(30*time.Second),
		WithIdleTTL(10*time.Minute),
	), clock
}

func TestTracker_Lifecycle(t *testing.T) {
	tr, _ := newTestTracker(t)

	p, started := tr.Start("alice", 0)
	require.True(t, started)
	require.Equal(t, domain.SyncLoading, p.Status)

	require.True(t, tr.Advance("alice", 1, 3))
	require.True(t, tr.Advance("alice", 2, 3))

	p, ok := tr.Get("alice")
	require.True(t, ok)
	require.Equal(t, 2, p.CurrentPage)
	require.Equal(t, 3, p.TotalPages)

	require.True(t, tr.Advance("alice", 3, 0))
	require.True(t, tr.Complete("alice"))

	p, ok = tr.Get("alice")
	require.True(t, ok)
	require.Equal(t, domain.SyncCompleted, p.Status)
	require.Equal(t, 3, p.CurrentPage)
	require.Equal(t, 3, p.TotalPages, "zero total keeps the recorded one")
}

func TestTracker_AdvanceIgnoresStaleAndDecreasingPages(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Start("alice", 10)

	require.True(t, tr.Advance("alice", 4, 10))
	require.False(t, tr.Advance("alice", 3, 10))
	require.False(t, tr.Advance("alice", 4, 10))

	p, _ := tr.Get("alice")
	require.Equal(t, 4, p.CurrentPage)
}

func TestTracker_TerminalStatesAreFinal(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Start("alice", 10)
	tr.Advance("alice", 3, 10)
	require.True(t, tr.Fail("alice", "remote fetch failed"))

	require.False(t, tr.Advance("alice", 4, 10))
	require.False(t, tr.Complete("alice"))
	require.False(t, tr.Fail("alice", "again"))

	p, ok := tr.Get("alice")
	require.True(t, ok)
	require.Equal(t, domain.SyncFailed, p.Status)
	require.Equal(t, "remote fetch failed", p.Reason)
	require.Equal(t, 3, p.CurrentPage)
}

func TestTracker_StartWhileLoadingIsRejected(t *testing.T) {
	tr, _ := newTestTracker(t)
	first, started := tr.Start("alice", 5)
	require.True(t, started)
	tr.Advance("alice", 2, 5)

	again, started := tr.Start("alice", 0)
	require.False(t, started)
	require.Equal(t, first.StartedAt, again.StartedAt)
	require.Equal(t, 2, again.CurrentPage)
}

func TestTracker_StartReplacesTerminalEntry(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.Start("alice", 2)
	tr.Fail("alice", "boom")

	clock.Advance(time.Minute)
	p, started := tr.Start("alice", 0)
	require.True(t, started)
	require.Equal(t, domain.SyncLoading, p.Status)
	require.Empty(t, p.Reason)
	require.Zero(t, p.CurrentPage)
}

func TestTracker_OperationsOnUnknownOwner(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.False(t, tr.Advance("ghost", 1, 1))
	require.False(t, tr.Complete("ghost"))
	require.False(t, tr.Fail("ghost", "x"))
	require.False(t, tr.Loading("ghost"))
	_, ok := tr.Get("ghost")
	require.False(t, ok)
}

func TestTracker_SweepKeepsUnobservedAndLoadingEntries(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.Start("loading", 0)
	tr.Start("done", 0)
	tr.Complete("done")

	clock.Advance(time.Minute)
	require.Zero(t, tr.Sweep(), "terminal entry not yet observed stays")
	require.Equal(t, 2, tr.Len())

	clock.Advance(time.Hour)
	require.Equal(t, 1, tr.Sweep(), "idle TTL retires unobserved terminal entries")
	require.True(t, tr.Loading("loading"), "loading entries are never swept")
}

func TestTracker_SweepRetiresObservedEntriesAfterRetention(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.Start("alice", 0)
	tr.Complete("alice")

	clock.Advance(5 * time.Minute)
	_, ok := tr.Get("alice")
	require.True(t, ok)

	clock.Advance(10 * time.Second)
	require.Zero(t, tr.Sweep(), "retention counts from the first read")

	clock.Advance(30 * time.Second)
	require.Equal(t, 1, tr.Sweep())
	_, ok = tr.Get("alice")
	require.False(t, ok)
}

func TestTracker_Forget(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Start("alice", 0)
	tr.Forget("alice")
	require.False(t, tr.Loading("alice"))
	require.Zero(t, tr.Len())
}

func TestTracker_ConcurrentAdvanceIsMonotonic(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Start("alice", 100)

	var wg sync.WaitGroup
	for page := 1; page <= 100; page++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			tr.Advance("alice", p, 100)
		}(page)
	}
	wg.Wait()

	p, _ := tr.Get("alice")
	require.Equal(t, 100, p.CurrentPage)
}

func TestTracker_RunStopsWithContext(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		tr.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
