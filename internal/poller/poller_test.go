package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamim/deckforge/internal/api"
	"github.com/lamim/deckforge/pkg/models"
)

const waitTimeout = 2 * time.Second

// fakeClock hands out tickers that only fire when the test says so
type fakeClock struct {
	created chan *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{created: make(chan *fakeTicker, 16)}
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time)}
	c.created <- t
	return t
}

// next returns the ticker of the most recently started watch
func (c *fakeClock) next(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-c.created:
		return tk
	case <-time.After(waitTimeout):
		t.Fatal("no ticker created")
		return nil
	}
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// tick blocks until the watch goroutine has received the tick
func (t *fakeTicker) tick(tb testing.TB) {
	tb.Helper()
	select {
	case t.ch <- time.Now():
	case <-time.After(waitTimeout):
		tb.Fatal("tick was not consumed")
	}
}

type step struct {
	job *models.Job
	err error
}

type fetcherFunc func(ctx context.Context, jobID string) (*models.Job, error)

func (f fetcherFunc) TaskStatus(ctx context.Context, jobID string) (*models.Job, error) {
	return f(ctx, jobID)
}

// scripted replays steps in order, repeating the last one
func scripted(steps ...step) fetcherFunc {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, jobID string) (*models.Job, error) {
		mu.Lock()
		defer mu.Unlock()
		s := steps[i]
		if i < len(steps)-1 {
			i++
		}
		if s.err != nil {
			return nil, s.err
		}
		job := *s.job
		return &job, nil
	}
}

func status(s models.JobStatus, progress int) step {
	return step{job: &models.Job{ID: "abc", Status: s, Progress: progress}}
}

// recorder collects callbacks
type recorder struct {
	mu        sync.Mutex
	updates   []models.Job
	terminals []models.Job
	events    chan models.Job
}

func newRecorder() *recorder {
	return &recorder{events: make(chan models.Job, 64)}
}

func (r *recorder) onUpdate(job models.Job) {
	r.mu.Lock()
	r.updates = append(r.updates, job)
	r.mu.Unlock()
	r.events <- job
}

func (r *recorder) onTerminal(job models.Job) {
	r.mu.Lock()
	r.terminals = append(r.terminals, job)
	r.mu.Unlock()
}

func (r *recorder) waitUpdate(t *testing.T) models.Job {
	t.Helper()
	select {
	case job := <-r.events:
		return job
	case <-time.After(waitTimeout):
		t.Fatal("no update delivered")
		return models.Job{}
	}
}

func (r *recorder) snapshot() ([]models.Job, []models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Job(nil), r.updates...), append([]models.Job(nil), r.terminals...)
}

func statuses(jobs []models.Job) []models.JobStatus {
	out := make([]models.JobStatus, len(jobs))
	for i, j := range jobs {
		out[i] = j.Status
	}
	return out
}

func waitDone(t *testing.T, w *Watch) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(waitTimeout):
		t.Fatal("watch did not finish")
	}
}

func newTestPoller(fetcher StatusFetcher, clock Clock, maxFailures int) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fetcher, Options{Interval: time.Second, MaxFailures: maxFailures, Clock: clock}, logger)
}

func TestWatch_DeliversUpdatesThenTerminalOnce(t *testing.T) {
	clock := newFakeClock()
	completed := step{job: &models.Job{ID: "abc", Status: models.JobStatusCompleted, Progress: 100, ResultRef: "/api/download/abc"}}
	p := newTestPoller(scripted(
		status(models.JobStatusPending, 0),
		status(models.JobStatusProcessing, 40),
		completed,
	), clock, 0)
	defer p.Close()

	rec := newRecorder()
	w := p.Watch(context.Background(), "render", "abc", rec.onUpdate, rec.onTerminal)
	tk := clock.next(t)

	tk.tick(t)
	assert.Equal(t, models.JobStatusPending, rec.waitUpdate(t).Status)
	tk.tick(t)
	assert.Equal(t, 40, rec.waitUpdate(t).Progress)
	tk.tick(t)
	waitDone(t, w)

	updates, terminals := rec.snapshot()
	assert.Equal(t,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted},
		statuses(updates))
	require.Len(t, terminals, 1)
	assert.Equal(t, models.JobStatusCompleted, terminals[0].Status)
	assert.Equal(t, "/api/download/abc", terminals[0].ResultRef)
	assert.Equal(t, 0, p.Active())

	tk.mu.Lock()
	assert.True(t, tk.stopped, "ticker should be stopped after terminal")
	tk.mu.Unlock()
}

func TestWatch_CancelSuppressesInFlightDelivery(t *testing.T) {
	clock := newFakeClock()
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := fetcherFunc(func(ctx context.Context, jobID string) (*models.Job, error) {
		close(started)
		<-release // ignores ctx: the response arrives after cancellation
		return &models.Job{ID: jobID, Status: models.JobStatusCompleted, Progress: 100}, nil
	})
	p := newTestPoller(fetcher, clock, 0)
	defer p.Close()

	rec := newRecorder()
	w := p.Watch(context.Background(), "render", "abc", rec.onUpdate, rec.onTerminal)
	clock.next(t).tick(t)

	<-started
	w.Cancel()
	close(release)
	waitDone(t, w)

	updates, terminals := rec.snapshot()
	assert.Empty(t, updates)
	assert.Empty(t, terminals)
}

func TestWatch_CancelIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	p := newTestPoller(scripted(status(models.JobStatusCompleted, 100)), clock, 0)
	defer p.Close()

	rec := newRecorder()
	w := p.Watch(context.Background(), "render", "abc", rec.onUpdate, rec.onTerminal)
	clock.next(t).tick(t)
	waitDone(t, w)

	w.Cancel()
	w.Cancel()

	_, terminals := rec.snapshot()
	assert.Len(t, terminals, 1)
}

func TestWatch_CancelBeforeFirstTick(t *testing.T) {
	clock := newFakeClock()
	var calls int
	fetcher := fetcherFunc(func(ctx context.Context, jobID string) (*models.Job, error) {
		calls++
		return &models.Job{ID: jobID, Status: models.JobStatusPending}, nil
	})
	p := newTestPoller(fetcher, clock, 0)
	defer p.Close()

	rec := newRecorder()
	w := p.Watch(context.Background(), "render", "abc", rec.onUpdate, rec.onTerminal)
	clock.next(t)
	w.Cancel()
	waitDone(t, w)

	assert.Equal(t, 0, calls)
	updates, _ := rec.snapshot()
	assert.Empty(t, updates)
}

func TestWatch_ParentContextCancels(t *testing.T) {
	clock := newFakeClock()
	p := newTestPoller(scripted(status(models.JobStatusPending, 0)), clock, 0)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	w := p.Watch(ctx, "render", "abc", nil, nil)
	clock.next(t)
	cancel()
	waitDone(t, w)
	assert.Equal(t, 0, p.Active())
}

func TestWatch_FetchErrorsAreRetried(t *testing.T) {
	clock := newFakeClock()
	flaky := &api.UpstreamError{Op: api.OpTaskStatus, Message: "connection refused", Retryable: true}
	p := newTestPoller(scripted(
		step{err: flaky},
		step{err: flaky},
		status(models.JobStatusProcessing, 50),
		step{err: flaky},
		status(models.JobStatusCompleted, 100),
	), clock, 3)
	defer p.Close()

	rec := newRecorder()
	w := p.Watch(context.Background(), "conversion", "abc", rec.onUpdate, rec.onTerminal)
	tk := clock.next(t)
	for i := 0; i < 5; i++ {
		tk.tick(t)
	}
	waitDone(t, w)

	updates, terminals := rec.snapshot()
	assert.Equal(t, []models.JobStatus{models.JobStatusProcessing, models.JobStatusCompleted}, statuses(updates))
	require.Len(t, terminals, 1)
	assert.Equal(t, models.JobStatusCompleted, terminals[0].Status)
}

func TestWatch_FailureCapEndsAsFailed(t *testing.T) {
	clock := newFakeClock()
	p := newTestPoller(scripted(step{err: errors.New("dial tcp: connection refused")}), clock, 3)
	defer p.Close()

	rec := newRecorder()
	w := p.Watch(context.Background(), "render", "abc", rec.onUpdate, rec.onTerminal)
	tk := clock.next(t)
	for i := 0; i < 3; i++ {
		tk.tick(t)
	}
	waitDone(t, w)

	updates, terminals := rec.snapshot()
	require.Len(t, terminals, 1)
	assert.Equal(t, models.JobStatusFailed, terminals[0].Status)
	assert.Equal(t, "abc", terminals[0].ID)
	assert.Equal(t, "dial tcp: connection refused", terminals[0].Message)
	assert.Len(t, updates, 1)
}

func TestWatch_NotFoundEndsImmediately(t *testing.T) {
	clock := newFakeClock()
	notFound := &api.UpstreamError{Op: api.OpTaskStatus, StatusCode: 404, Message: "任务不存在"}
	p := newTestPoller(scripted(step{err: notFound}), clock, 0)
	defer p.Close()

	rec := newRecorder()
	w := p.Watch(context.Background(), "render", "gone", rec.onUpdate, rec.onTerminal)
	clock.next(t).tick(t)
	waitDone(t, w)

	_, terminals := rec.snapshot()
	require.Len(t, terminals, 1)
	assert.Equal(t, models.JobStatusFailed, terminals[0].Status)
	assert.Equal(t, "任务不存在", terminals[0].Message)
}

func TestWatch_DropsStatusRegression(t *testing.T) {
	clock := newFakeClock()
	p := newTestPoller(scripted(
		status(models.JobStatusProcessing, 30),
		status(models.JobStatusPending, 0),
		status(models.JobStatusCompleted, 100),
	), clock, 0)
	defer p.Close()

	rec := newRecorder()
	w := p.Watch(context.Background(), "render", "abc", rec.onUpdate, rec.onTerminal)
	tk := clock.next(t)
	for i := 0; i < 3; i++ {
		tk.tick(t)
	}
	waitDone(t, w)

	updates, _ := rec.snapshot()
	assert.Equal(t, []models.JobStatus{models.JobStatusProcessing, models.JobStatusCompleted}, statuses(updates))
}

func TestWatch_ClampsProgress(t *testing.T) {
	clock := newFakeClock()
	p := newTestPoller(scripted(status(models.JobStatusProcessing, 250)), clock, 0)
	defer p.Close()

	rec := newRecorder()
	p.Watch(context.Background(), "render", "abc", rec.onUpdate, rec.onTerminal)
	clock.next(t).tick(t)

	assert.Equal(t, 100, rec.waitUpdate(t).Progress)
}

func TestPoller_NewWatchReplacesSlot(t *testing.T) {
	clock := newFakeClock()
	p := newTestPoller(scripted(status(models.JobStatusProcessing, 10)), clock, 0)
	defer p.Close()

	first := newRecorder()
	w1 := p.Watch(context.Background(), "render", "old", first.onUpdate, first.onTerminal)
	clock.next(t)

	second := newRecorder()
	w2 := p.Watch(context.Background(), "render", "new", second.onUpdate, second.onTerminal)
	tk2 := clock.next(t)

	waitDone(t, w1)
	assert.Equal(t, 1, p.Active())

	tk2.tick(t)
	assert.Equal(t, "abc", second.waitUpdate(t).ID)

	updates, _ := first.snapshot()
	assert.Empty(t, updates)
	assert.Equal(t, "new", w2.JobID())
}

func TestPoller_SlotsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	p := newTestPoller(scripted(status(models.JobStatusProcessing, 10)), clock, 0)
	defer p.Close()

	render := p.Watch(context.Background(), "render", "r", nil, nil)
	clock.next(t)
	p.Watch(context.Background(), "conversion", "c", nil, nil)
	clock.next(t)
	assert.Equal(t, 2, p.Active())

	p.Cancel("render")
	waitDone(t, render)
	assert.Equal(t, 1, p.Active())
}

func TestPoller_Close(t *testing.T) {
	clock := newFakeClock()
	p := newTestPoller(scripted(status(models.JobStatusProcessing, 10)), clock, 0)

	w1 := p.Watch(context.Background(), "render", "r", nil, nil)
	clock.next(t)
	w2 := p.Watch(context.Background(), "conversion", "c", nil, nil)
	clock.next(t)

	p.Close()
	waitDone(t, w1)
	waitDone(t, w2)
	assert.Equal(t, 0, p.Active())

	rec := newRecorder()
	w3 := p.Watch(context.Background(), "render", "late", rec.onUpdate, rec.onTerminal)
	waitDone(t, w3)
	assert.Equal(t, 0, p.Active())
}
