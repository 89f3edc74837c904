package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmcdole/crate/internal/domain"
)

// scripted returns one progress per poll, repeating the last.
type scripted struct {
	steps []domain.SyncProgress
	calls int
}

func (s *scripted) CacheProgress(string) (domain.SyncProgress, bool) {
	if len(s.steps) == 0 {
		return domain.SyncProgress{}, false
	}
	i := min(s.calls, len(s.steps)-1)
	s.calls++
	return s.steps[i], true
}

func loading(page int) domain.SyncProgress {
	return domain.SyncProgress{OwnerID: "alice", Status: domain.SyncLoading, CurrentPage: page, TotalPages: 3}
}

type recorder struct {
	slept []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func newPoller(src ProgressSource, cfg Config) (*Poller, *recorder) {
	rec := &recorder{}
	return New(src, cfg, nil, WithSleep(rec.sleep)), rec
}

func TestSchedule_BacksOffAndCaps(t *testing.T) {
	p, _ := newPoller(&scripted{}, Config{
		Interval:      100 * time.Millisecond,
		MaxAttempts:   6,
		BackoffFactor: 2,
		MaxInterval:   500 * time.Millisecond,
	})
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, p.Schedule())
}

func TestWait_ReturnsTerminalProgress(t *testing.T) {
	done := domain.SyncProgress{OwnerID: "alice", Status: domain.SyncCompleted, CurrentPage: 3, TotalPages: 3}
	src := &scripted{steps: []domain.SyncProgress{loading(1), loading(2), done}}
	p, rec := newPoller(src, Config{Interval: time.Second, MaxAttempts: 10, BackoffFactor: 2, MaxInterval: time.Minute})

	got, err := p.Wait(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, done, got)
	require.Equal(t, 3, src.calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.slept)
}

func TestWait_FailedRefreshIsNotAnError(t *testing.T) {
	failed := domain.SyncProgress{Status: domain.SyncFailed, Reason: "boom"}
	p, _ := newPoller(&scripted{steps: []domain.SyncProgress{failed}}, Config{})

	got, err := p.Wait(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, domain.SyncFailed, got.Status)
	require.Equal(t, "boom", got.Reason)
}

func TestWait_TimesOutAfterMaxAttempts(t *testing.T) {
	src := &scripted{steps: []domain.SyncProgress{loading(1), loading(2)}}
	p, rec := newPoller(src, Config{Interval: time.Millisecond, MaxAttempts: 4, BackoffFactor: 1, MaxInterval: time.Second})

	got, err := p.Wait(context.Background(), "alice")
	require.ErrorIs(t, err, ErrPollTimeout)
	require.Equal(t, 2, got.CurrentPage, "last observed progress is returned")
	require.Equal(t, 4, src.calls)
	require.Len(t, rec.slept, 3)
}

func TestWait_NotTracked(t *testing.T) {
	p, _ := newPoller(&scripted{}, Config{})
	_, err := p.Wait(context.Background(), "alice")
	require.ErrorIs(t, err, ErrNotTracked)
}

func TestWait_HonorsContext(t *testing.T) {
	src := &scripted{steps: []domain.SyncProgress{loading(1)}}
	p := New(src, Config{Interval: time.Hour, MaxAttempts: 3}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx, "alice")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwait_ReconcilesOnlyOnCompletion(t *testing.T) {
	ctx := context.Background()
	completed := &scripted{steps: []domain.SyncProgress{{Status: domain.SyncCompleted}}}
	failed := &scripted{steps: []domain.SyncProgress{{Status: domain.SyncFailed}}}

	calls := 0
	reconcile := func(domain.SyncProgress) error { calls++; return nil }

	p, _ := newPoller(completed, Config{})
	_, err := p.Await(ctx, "alice", reconcile)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	p, _ = newPoller(failed, Config{})
	_, err = p.Await(ctx, "alice", reconcile)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	boom := errors.New("reload failed")
	p, _ = newPoller(completed, Config{})
	_, err = p.Await(ctx, "alice", func(domain.SyncProgress) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestWait_NotifiesObserver(t *testing.T) {
	src := &scripted{steps: []domain.SyncProgress{
		loading(1), loading(2),
		{OwnerID: "alice", Status: domain.SyncCompleted, CurrentPage: 3, TotalPages: 3},
	}}
	var pages []int
	p := New(src, Config{}, nil,
		WithSleep(func(context.Context, time.Duration) error { return nil }),
		WithObserver(func(prog domain.SyncProgress) { pages = append(pages, prog.CurrentPage) }),
	)

	_, err := p.Wait(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, pages)
}
