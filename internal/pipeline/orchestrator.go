package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/wesleyorama2/fusillade/internal/ctxlog"
	"github.com/wesleyorama2/fusillade/internal/mailer"
	"github.com/wesleyorama2/fusillade/internal/naming"
	"github.com/wesleyorama2/fusillade/internal/runner"
	"github.com/wesleyorama2/fusillade/internal/store"
	"github.com/wesleyorama2/fusillade/internal/watch"
)

// ErrRunning is returned when Run or Clean is called while a run is in flight.
var ErrRunning = errors.New("a session is already running")

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the artifact store. Required.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithMailer sets the digest mailer. Required.
func WithMailer(m mailer.Mailer) Option {
	return func(o *Orchestrator) { o.mailer = m }
}

// WithRunner sets the job runner. Defaults to artillery in the current directory.
func WithRunner(r JobRunner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock sets the time source used for session keys and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithObserver registers an observer of state transitions.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// Orchestrator drives sessions through the state machine
// Init, WatchOpen, StageOneRunning, StageTwoRunning, CleanUpRunning,
// WatchClosed, Exit(0); any failure ends in Exit(1).
type Orchestrator struct {
	cfg      Config
	store    store.Store
	mailer   mailer.Mailer
	runner   JobRunner
	logger   *slog.Logger
	now      func() time.Time
	observer Observer

	mu      sync.Mutex
	state   State
	running bool
}

// New returns an orchestrator for cfg.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:    cfg,
		runner: &runner.Runner{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if o.mailer == nil {
		return nil, errors.New("pipeline: mailer is required")
	}
	if o.runner == nil {
		return nil, errors.New("pipeline: runner is required")
	}
	if cfg.LogRoot == "" || cfg.SrcRoot == "" {
		return nil, errors.New("pipeline: log and source roots are required")
	}

	// Manifests outlive the process, so the paths they list must not depend
	// on the working directory of the run that saved them.
	for _, root := range []*string{&o.cfg.LogRoot, &o.cfg.SrcRoot} {
		abs, err := filepath.Abs(*root)
		if err != nil {
			return nil, fmt.Errorf("pipeline: failed to resolve %s: %w", *root, err)
		}
		*root = abs
	}
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

type stage struct {
	name  Stage
	state State
	run   func(context.Context, *Session) error
	// records reports whether run writes its own exception records.
	records bool
}

var stages = []stage{
	{name: StageExecution, state: StateStageOneRunning, run: StageOne},
	{name: StageCollection, state: StateStageTwoRunning, run: StageTwo},
	{name: StageCleanUp, state: StateCleanUpRunning, run: CleanUp, records: true},
}

// Run executes one full session. The report directory watches are released
// on every path out of Run.
func (o *Orchestrator) Run(ctx context.Context) error {
	s, ctx, err := o.begin(ctx)
	if err != nil {
		return err
	}
	defer o.end()

	watchers, err := o.openWatches(ctx, s)
	closeWatches := func() {
		for _, w := range watchers {
			dir := w.Dir()
			if err := w.Stop(); err != nil {
				s.Logger.Warn("failed to close watch", "dir", dir, "error", err)
			}
		}
	}
	defer closeWatches()

	if err != nil {
		return o.fail(ctx, s, StageWatch, err, true)
	}
	o.transition(StateWatchOpen, nil)

	for _, st := range stages {
		o.transition(st.state, nil)
		if err := st.run(ctx, s); err != nil {
			closeWatches()
			return o.fail(ctx, s, st.name, err, !st.records)
		}
	}

	closeWatches()
	o.transition(StateWatchClosed, nil)
	o.transition(StateExit0, nil)
	s.Logger.Info("session complete")
	return nil
}

// Clean runs only the retention stage under a fresh session key, purging
// every manifest in the store.
func (o *Orchestrator) Clean(ctx context.Context) error {
	s, ctx, err := o.begin(ctx)
	if err != nil {
		return err
	}
	defer o.end()

	o.transition(StateCleanUpRunning, nil)
	if err := CleanUp(ctx, s); err != nil {
		return o.fail(ctx, s, StageCleanUp, err, false)
	}
	o.transition(StateExit0, nil)
	return nil
}

func (o *Orchestrator) begin(ctx context.Context) (*Session, context.Context, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ctx, ErrRunning
	}
	o.running = true
	o.state = StateInit
	o.mu.Unlock()

	start := o.now()
	key := naming.SessionKey(start)
	logger := o.logger.With("session", key)

	s := &Session{
		Key:       key,
		StartedAt: start,
		Config:    o.cfg,
		Store:     o.store,
		Mailer:    o.mailer,
		Runner:    o.runner,
		Logger:    logger,
		now:       o.now,
	}
	logger.Info("session started", "log", o.cfg.LogRoot, "src", o.cfg.SrcRoot)
	if so, ok := o.observer.(SessionObserver); ok {
		so.SessionStarted(key, o.cfg)
	}
	return s, ctxlog.WithLogger(ctx, logger), nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) openWatches(ctx context.Context, s *Session) ([]*watch.Watcher, error) {
	var watchers []*watch.Watcher
	for _, kind := range store.Kinds {
		w := watch.New(s.Logger.With("kind", kind))
		dir := naming.KindDir(s.Config.LogRoot, string(kind))
		if err := w.Start(ctx, dir, watch.PersistHandler(s.Store, kind, s.Key, o.now)); err != nil {
			return watchers, err
		}
		watchers = append(watchers, w)
	}
	return watchers, nil
}

func (o *Orchestrator) fail(ctx context.Context, s *Session, name Stage, err error, record bool) error {
	if record {
		recordException(ctx, s, name, err)
	}
	stageErr := &StageError{Stage: name, Err: err}
	o.transition(StateExit1, stageErr)
	return stageErr
}

func (o *Orchestrator) transition(to State, err error) {
	o.mu.Lock()
	from := o.state
	o.state = to
	o.mu.Unlock()

	if err != nil {
		o.logger.Debug("state changed", "from", from.String(), "to", to.String(), "error", err)
	} else {
		o.logger.Debug("state changed", "from", from.String(), "to", to.String())
	}
	if o.observer != nil {
		o.observer.StateChanged(from, to, err)
	}
}
