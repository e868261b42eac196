// Package orchestrator owns the session: it turns user intents into backend
// requests, tracks the resulting jobs through the poller and exposes the
// session state as immutable snapshots.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lamim/deckforge/internal/api"
	"github.com/lamim/deckforge/internal/config"
	"github.com/lamim/deckforge/internal/outline"
	"github.com/lamim/deckforge/internal/poller"
	"github.com/lamim/deckforge/pkg/models"
)

// Poller slots. One job per slot at a time.
const (
	slotRender     = string(models.JobKindRender)
	slotConversion = string(models.JobKindConversion)
)

var (
	// ErrNoOutline is returned by operations that need an outline before one exists
	ErrNoOutline = errors.New("no outline loaded")
	// ErrSuperseded is returned when a newer request on the same slot made this one moot
	ErrSuperseded = errors.New("request superseded by a newer one")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("orchestrator closed")
)

// JobClient is the backend surface the orchestrator drives
type JobClient interface {
	ListModels(ctx context.Context) ([]string, error)
	GenerateOutline(ctx context.Context, content, model string, slideCount int) (*models.Outline, error)
	GeneratePPT(ctx context.Context, outline models.Outline, theme string, templateID string) (*models.Job, error)
	ConvertFile(ctx context.Context, file api.Upload, targetFormat string) (*models.Job, error)
	UploadTemplate(ctx context.Context, file api.Upload) (*models.TemplateRef, error)
	TaskStatus(ctx context.Context, jobID string) (*models.Job, error)
	DownloadURL(jobID string) string
}

// Orchestrator coordinates the generation and conversion workflows of one session
type Orchestrator struct {
	client JobClient
	poller *poller.Poller
	cfg    config.Config
	logger *slog.Logger

	// ctx scopes every watch started by this orchestrator
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	genSeq      uint64
	convSeq     uint64
	templateSeq uint64
	closed      bool
	listeners   map[int]func(State)
	nextID      int

	// notifyMu keeps listener deliveries in state order
	notifyMu sync.Mutex
	// trackMu serialises watch registration
	trackMu sync.Mutex
}

// New creates an orchestrator. It owns the poller's "render" and
// "conversion" slots, so a poller must not be shared between orchestrators.
func New(client JobClient, p *poller.Poller, cfg config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		client: client,
		poller: p,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		state: State{
			Mode:       ModeGenerate,
			Generation: SlotView{Phase: PhaseIdle},
			Conversion: SlotView{Phase: PhaseIdle},
		},
		listeners: make(map[int]func(State)),
	}
}

// State returns a snapshot of the session
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe registers fn to receive a snapshot after every state change and
// returns a function that removes it. Listeners run outside the state lock
// but must not call back into the orchestrator synchronously.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

// Await blocks until cond holds for the current state or ctx ends
func (o *Orchestrator) Await(ctx context.Context, cond func(State) bool) (State, error) {
	ch := make(chan State, 1)
	unsubscribe := o.Subscribe(func(s State) {
		if cond(s) {
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	if s := o.State(); cond(s) {
		return s, nil
	}

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return o.State(), ctx.Err()
	}
}

// notify delivers the current state to every listener
func (o *Orchestrator) notify() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	snapshot := o.state.clone()
	listeners := make([]func(State), 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot.clone())
	}
}

// LoadModels fetches the model list into the session state
func (o *Orchestrator) LoadModels(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		o.fail(err)
		return nil, err
	}

	o.mu.Lock()
	o.state.Models = append([]string(nil), list...)
	o.mu.Unlock()
	o.notify()

	o.logger.Debug("Models loaded", "count", len(list))
	return list, nil
}

// DefaultModel is the configured model, or the first backend model when the
// configured one is not offered
func (o *Orchestrator) DefaultModel() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.defaultModelLocked()
}

func (o *Orchestrator) defaultModelLocked() string {
	if len(o.state.Models) == 0 {
		return o.cfg.Defaults.Model
	}
	for _, m := range o.state.Models {
		if m == o.cfg.Defaults.Model {
			return m
		}
	}
	return o.state.Models[0]
}

// SetMode switches the active workflow. Slots keep running in the background.
func (o *Orchestrator) SetMode(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	o.mu.Lock()
	o.state.Mode = mode
	o.mu.Unlock()
	o.notify()
	return nil
}

// DismissError clears the recorded error
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	o.state.Error = ""
	o.mu.Unlock()
	o.notify()
}

// RequestOutline generates a new outline from content. An empty model or a
// zero slideCount falls back to the configured defaults. On failure the
// generation slot returns to where it was and the error is recorded.
func (o *Orchestrator) RequestOutline(ctx context.Context, content, model string, slideCount int) error {
	if strings.TrimSpace(content) == "" {
		err := &api.ValidationError{Field: "content", Message: "must not be empty"}
		o.fail(err)
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if model == "" {
		model = o.defaultModelLocked()
	}
	if slideCount == 0 {
		slideCount = o.cfg.Defaults.SlideCount
	}
	o.genSeq++
	seq := o.genSeq
	o.state.Generation = SlotView{Phase: PhaseAwaitingGeneration}
	o.state.Error = ""
	o.mu.Unlock()
	o.notify()

	// A new outline replaces whatever was rendering
	o.poller.Cancel(slotRender)

	o.logger.Info("Requesting outline", "model", model, "slide_count", slideCount)
	result, err := o.client.GenerateOutline(ctx, content, model, slideCount)

	o.mu.Lock()
	if seq != o.genSeq {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		o.state.Generation = SlotView{Phase: o.restingPhaseLocked()}
		o.state.Error = api.Message(err)
		o.mu.Unlock()
		o.notify()
		o.logger.Error("Outline generation failed", "error", err)
		return err
	}
	doc := result.Clone()
	o.state.Outline = &doc
	o.state.Generation = SlotView{Phase: PhaseReady}
	o.mu.Unlock()
	o.notify()

	o.logger.Info("Outline ready", "title", result.Title, "slides", len(result.Slides))
	return nil
}

// LoadOutline installs an outline that came from elsewhere (e.g. a file) and
// makes the generation slot ready
func (o *Orchestrator) LoadOutline(doc models.Outline) error {
	if err := doc.Validate(); err != nil {
		return &api.ValidationError{Field: "outline", Message: err.Error()}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.genSeq++
	clone := doc.Clone()
	o.state.Outline = &clone
	o.state.Generation = SlotView{Phase: PhaseReady}
	o.mu.Unlock()

	o.poller.Cancel(slotRender)
	o.notify()
	return nil
}

// RequestRender submits the current outline for rendering. An empty theme
// uses the configured default; an empty templateID uses the uploaded
// template, if any.
func (o *Orchestrator) RequestRender(ctx context.Context, theme, templateID string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state.Outline == nil {
		o.mu.Unlock()
		o.fail(ErrNoOutline)
		return ErrNoOutline
	}
	if theme == "" {
		theme = o.cfg.Defaults.Theme
	}
	if templateID == "" && o.state.Template != nil {
		templateID = o.state.Template.ID
	}
	snapshot := o.state.Outline.Clone()
	o.genSeq++
	seq := o.genSeq
	o.state.Generation = SlotView{Phase: PhaseAwaitingRender}
	o.state.Error = ""
	o.mu.Unlock()
	o.notify()

	o.poller.Cancel(slotRender)

	o.logger.Info("Requesting render", "theme", theme, "template_id", templateID, "slides", len(snapshot.Slides))
	job, err := o.client.GeneratePPT(ctx, snapshot, theme, templateID)

	o.mu.Lock()
	if seq != o.genSeq {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		o.state.Generation = SlotView{Phase: o.restingPhaseLocked()}
		o.state.Error = api.Message(err)
		o.mu.Unlock()
		o.notify()
		o.logger.Error("Render submission failed", "error", err)
		return err
	}
	job.Kind = models.JobKindRender
	o.state.Generation.Job = job
	o.mu.Unlock()
	o.notify()

	o.track(slotRender, job.ID, seq)
	return nil
}

// EditSlide replaces one field of one slide of the current outline
func (o *Orchestrator) EditSlide(index int, field outline.Field, value interface{}) error {
	o.mu.Lock()
	if o.state.Outline == nil {
		o.mu.Unlock()
		o.fail(ErrNoOutline)
		return ErrNoOutline
	}
	updated, err := outline.SetSlideField(*o.state.Outline, index, field, value)
	if err != nil {
		o.state.Error = err.Error()
		o.mu.Unlock()
		o.notify()
		return err
	}
	o.state.Outline = &updated
	o.mu.Unlock()
	o.notify()

	o.logger.Debug("Slide edited", "index", index, "field", field)
	return nil
}

// SetTitle replaces the outline title
func (o *Orchestrator) SetTitle(title string) error {
	o.mu.Lock()
	if o.state.Outline == nil {
		o.mu.Unlock()
		o.fail(ErrNoOutline)
		return ErrNoOutline
	}
	updated := outline.SetTitle(*o.state.Outline, title)
	o.state.Outline = &updated
	o.mu.Unlock()
	o.notify()
	return nil
}

// UploadTemplate stores a custom template and makes it the render default.
// At most one template is held; a new upload replaces the previous one.
func (o *Orchestrator) UploadTemplate(ctx context.Context, file api.Upload) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.templateSeq++
	seq := o.templateSeq
	o.mu.Unlock()

	ref, err := o.client.UploadTemplate(ctx, file)

	o.mu.Lock()
	if seq != o.templateSeq {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		o.state.Error = api.Message(err)
		o.mu.Unlock()
		o.notify()
		o.logger.Error("Template upload failed", "filename", file.Filename, "error", err)
		return err
	}
	o.state.Template = ref
	o.mu.Unlock()
	o.notify()

	o.logger.Info("Template uploaded", "template_id", ref.ID, "filename", ref.Filename)
	return nil
}

// ClearTemplate forgets the uploaded template
func (o *Orchestrator) ClearTemplate() {
	o.mu.Lock()
	o.templateSeq++
	o.state.Template = nil
	o.mu.Unlock()
	o.notify()
}

// RequestConversion submits file for conversion into targetFormat (the
// configured default when empty). The conversion slot always returns to idle
// once the job ends; a completed job leaves its download URL on the slot.
func (o *Orchestrator) RequestConversion(ctx context.Context, file api.Upload, targetFormat string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if targetFormat == "" {
		targetFormat = o.cfg.Defaults.TargetFormat
	}
	o.convSeq++
	seq := o.convSeq
	o.state.Conversion = SlotView{Phase: PhaseAwaitingConversion}
	o.state.Error = ""
	o.mu.Unlock()
	o.notify()

	o.poller.Cancel(slotConversion)

	o.logger.Info("Requesting conversion", "filename", file.Filename, "target_format", targetFormat)
	job, err := o.client.ConvertFile(ctx, file, targetFormat)

	o.mu.Lock()
	if seq != o.convSeq {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		o.state.Conversion = SlotView{Phase: PhaseIdle}
		o.state.Error = api.Message(err)
		o.mu.Unlock()
		o.notify()
		o.logger.Error("Conversion submission failed", "error", err)
		return err
	}
	job.Kind = models.JobKindConversion
	o.state.Conversion.Job = job
	o.mu.Unlock()
	o.notify()

	o.track(slotConversion, job.ID, seq)
	return nil
}

// Close cancels every poll the orchestrator started. Later requests fail with ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.poller.Cancel(slotRender)
	o.poller.Cancel(slotConversion)
	o.cancel()
}

// track starts polling jobID for slot. seq is the slot sequence number of the
// request that created the job; results are only applied while it is current.
func (o *Orchestrator) track(slot, jobID string, seq uint64) {
	o.trackMu.Lock()
	defer o.trackMu.Unlock()

	if !o.current(slot, seq) {
		return
	}
	w := o.poller.Watch(o.ctx, slot, jobID,
		func(job models.Job) { o.applyUpdate(slot, seq, job) },
		func(job models.Job) { o.applyTerminal(slot, seq, job) },
	)

	// A newer request may have cleared the slot before the watch registered
	if !o.current(slot, seq) {
		w.Cancel()
	}
}

func (o *Orchestrator) current(slot string, seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && seq == o.slotSeqLocked(slot)
}

func (o *Orchestrator) applyUpdate(slot string, seq uint64, job models.Job) {
	o.mu.Lock()
	if seq != o.slotSeqLocked(slot) {
		o.mu.Unlock()
		return
	}
	view := o.slotLocked(slot)
	job.Kind = models.JobKind(slot)
	view.Job = &job
	o.mu.Unlock()
	o.notify()

	o.logger.Debug("Job progress", "slot", slot, "job_id", job.ID, "status", job.Status, "progress", job.Progress)
}

func (o *Orchestrator) applyTerminal(slot string, seq uint64, job models.Job) {
	o.mu.Lock()
	if seq != o.slotSeqLocked(slot) {
		o.mu.Unlock()
		return
	}
	view := o.slotLocked(slot)
	job.Kind = models.JobKind(slot)
	view.Job = &job

	switch slot {
	case slotRender:
		view.Phase = o.restingPhaseLocked()
	case slotConversion:
		view.Phase = PhaseIdle
	}

	if job.Status == models.JobStatusCompleted {
		view.DownloadURL = o.client.DownloadURL(job.ID)
	} else {
		msg := job.Message
		if msg == "" {
			msg = fmt.Sprintf("%s job %s failed", slot, job.ID)
		}
		o.state.Error = msg
	}
	o.mu.Unlock()
	o.notify()

	if job.Status == models.JobStatusCompleted {
		o.logger.Info("Job completed", "slot", slot, "job_id", job.ID)
	} else {
		o.logger.Warn("Job failed", "slot", slot, "job_id", job.ID, "message", job.Message)
	}
}

// fail records err as the session error
func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	o.state.Error = api.Message(err)
	o.mu.Unlock()
	o.notify()
}

// restingPhaseLocked is where the generation slot settles when nothing is outstanding
func (o *Orchestrator) restingPhaseLocked() Phase {
	if o.state.Outline != nil {
		return PhaseReady
	}
	return PhaseIdle
}

func (o *Orchestrator) slotSeqLocked(slot string) uint64 {
	if slot == slotRender {
		return o.genSeq
	}
	return o.convSeq
}

func (o *Orchestrator) slotLocked(slot string) *SlotView {
	if slot == slotRender {
		return &o.state.Generation
	}
	return &o.state.Conversion
}
