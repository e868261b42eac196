// Package poller tracks asynchronous backend jobs by querying their status on
// a fixed cadence until they reach a terminal state or are cancelled.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lamim/deckforge/internal/api"
	"github.com/lamim/deckforge/internal/metrics"
	"github.com/lamim/deckforge/pkg/models"
)

const (
	// DefaultInterval is the polling cadence used when Options.Interval is unset
	DefaultInterval = time.Second
	// DefaultMaxFailures is the consecutive failure cap the CLI configures by default
	DefaultMaxFailures = 30
)

// StatusFetcher queries the current snapshot of a job
type StatusFetcher interface {
	TaskStatus(ctx context.Context, jobID string) (*models.Job, error)
}

// Options configures a Poller
type Options struct {
	Interval    time.Duration
	MaxFailures int // Consecutive fetch failures before giving up (0 = never)
	Clock       Clock
	Metrics     *metrics.Collector
}

// Poller runs at most one watch per slot
type Poller struct {
	fetcher StatusFetcher
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	watches map[string]*Watch
	closed  bool
}

// New creates a poller
func New(fetcher StatusFetcher, opts Options, logger *slog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxFailures < 0 {
		opts.MaxFailures = 0
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		watches: make(map[string]*Watch),
	}
}

// Watch starts tracking jobID under slot, cancelling whatever the slot was
// tracking before. onUpdate receives every accepted snapshot; the terminal
// snapshot goes to onUpdate and then onTerminal, exactly once. Either
// callback may be nil.
//
// Callbacks run on the watch's goroutine and must not call Cancel on their
// own watch.
func (p *Poller) Watch(ctx context.Context, slot, jobID string, onUpdate, onTerminal func(models.Job)) *Watch {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		poller:     p,
		slot:       slot,
		jobID:      jobID,
		onUpdate:   onUpdate,
		onTerminal: onTerminal,
		ctx:        wctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		w.stopped = true
		cancel()
		close(w.done)
		return w
	}
	prev := p.watches[slot]
	p.watches[slot] = w
	p.mu.Unlock()

	if prev != nil {
		p.logger.Debug("Replacing watch", "slot", slot, "old_job", prev.jobID, "new_job", jobID)
		prev.Cancel()
	}

	p.opts.Metrics.WatchStarted()
	p.logger.Debug("Watch started", "slot", slot, "job_id", jobID, "interval", p.opts.Interval)

	go w.run()
	return w
}

// Cancel stops the watch registered under slot, if any
func (p *Poller) Cancel(slot string) {
	p.mu.Lock()
	w := p.watches[slot]
	delete(p.watches, slot)
	p.mu.Unlock()

	if w != nil {
		w.Cancel()
	}
}

// Active returns the number of running watches
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watches)
}

// Close cancels every watch, waits for their goroutines to exit and makes
// later Watch calls no-ops. Must not be called from a watch callback.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	watches := make([]*Watch, 0, len(p.watches))
	for slot, w := range p.watches {
		watches = append(watches, w)
		delete(p.watches, slot)
	}
	p.mu.Unlock()

	for _, w := range watches {
		w.Cancel()
	}
	for _, w := range watches {
		<-w.Done()
	}
}

// release forgets w if it is still the slot's current watch
func (p *Poller) release(w *Watch) {
	p.mu.Lock()
	if p.watches[w.slot] == w {
		delete(p.watches, w.slot)
	}
	p.mu.Unlock()
}

// Watch is the handle of a single tracked job
type Watch struct {
	poller     *Poller
	slot       string
	jobID      string
	onUpdate   func(models.Job)
	onTerminal func(models.Job)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// mu serialises callback delivery with Cancel
	mu      sync.Mutex
	stopped bool

	// Owned by the run goroutine
	failures int
	lastRank int
}

// JobID returns the tracked job ID
func (w *Watch) JobID() string { return w.jobID }

// Done is closed once the polling goroutine has exited
func (w *Watch) Done() <-chan struct{} { return w.done }

// Cancel stops the watch. Once it returns no callback will start, including
// one for a status query that is still in flight. Safe to call repeatedly and
// after the job finished.
func (w *Watch) Cancel() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()
}

func (w *Watch) run() {
	p := w.poller
	ticker := p.opts.Clock.NewTicker(p.opts.Interval)
	started := time.Now()

	defer func() {
		ticker.Stop()
		w.cancel()
		p.release(w)
		p.opts.Metrics.WatchStopped()
		close(w.done)
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C():
		}

		job, err := p.fetcher.TaskStatus(w.ctx, w.jobID)
		if w.ctx.Err() != nil {
			p.opts.Metrics.RecordPoll(metrics.PollDiscard)
			return
		}

		if w.handle(job, err, started) {
			return
		}
	}
}

// handle processes one fetch result and reports whether polling is over
func (w *Watch) handle(job *models.Job, err error, started time.Time) bool {
	p := w.poller

	if err == nil && job == nil {
		err = fmt.Errorf("empty status response for job %s", w.jobID)
	}
	if err != nil {
		w.failures++
		p.opts.Metrics.RecordPoll(metrics.PollError)

		if api.IsNotFound(err) {
			p.logger.Warn("Job unknown to backend, giving up",
				"slot", w.slot,
				"job_id", w.jobID,
				"error", err)
			p.opts.Metrics.RecordPoll(metrics.PollGaveUp)
			return w.finish(w.failedSnapshot(api.Message(err)), started)
		}

		if p.opts.MaxFailures > 0 && w.failures >= p.opts.MaxFailures {
			p.logger.Error("Status polling failed repeatedly, giving up",
				"slot", w.slot,
				"job_id", w.jobID,
				"failures", w.failures,
				"error", err)
			p.opts.Metrics.RecordPoll(metrics.PollGaveUp)
			return w.finish(w.failedSnapshot(api.Message(err)), started)
		}

		p.logger.Warn("Status poll failed, retrying on next tick",
			"slot", w.slot,
			"job_id", w.jobID,
			"failures", w.failures,
			"error", err)
		return false
	}
	w.failures = 0

	snapshot := *job
	if snapshot.ID == "" {
		snapshot.ID = w.jobID
	}
	snapshot.ClampProgress()

	rank := snapshot.Status.Rank()
	if rank < w.lastRank {
		p.logger.Debug("Dropping stale status",
			"slot", w.slot,
			"job_id", w.jobID,
			"status", snapshot.Status)
		p.opts.Metrics.RecordPoll(metrics.PollStale)
		return false
	}
	w.lastRank = rank

	if snapshot.Status.Terminal() {
		return w.finish(snapshot, started)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		p.opts.Metrics.RecordPoll(metrics.PollDiscard)
		return true
	}
	p.opts.Metrics.RecordPoll(metrics.PollUpdate)
	if w.onUpdate != nil {
		w.onUpdate(snapshot)
	}
	return false
}

// finish delivers the terminal snapshot unless the watch was cancelled
func (w *Watch) finish(job models.Job, started time.Time) bool {
	p := w.poller

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		p.opts.Metrics.RecordPoll(metrics.PollDiscard)
		return true
	}
	w.stopped = true

	p.opts.Metrics.RecordPoll(metrics.PollTerminal)
	p.opts.Metrics.RecordJobTerminal(w.slot, string(job.Status), time.Since(started))
	p.logger.Info("Job finished",
		"slot", w.slot,
		"job_id", job.ID,
		"status", job.Status,
		"duration", time.Since(started).Round(time.Millisecond))

	if w.onUpdate != nil {
		w.onUpdate(job)
	}
	if w.onTerminal != nil {
		w.onTerminal(job)
	}
	return true
}

func (w *Watch) failedSnapshot(message string) models.Job {
	if message == "" {
		message = fmt.Sprintf("status of job %s could not be determined", w.jobID)
	}
	return models.Job{
		ID:      w.jobID,
		Status:  models.JobStatusFailed,
		Message: message,
	}
}
