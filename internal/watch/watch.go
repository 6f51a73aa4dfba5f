// Package watch observes report directories and hands every created or
// modified file to a handler.
//
// The watcher is a side observer of the pipeline: handlers run on the
// watcher's own goroutine and their failures never stop the event loop.
// Failures are sent to an error channel drained by a supervisor goroutine
// that logs them.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event is a filesystem change the handler is asked to process.
type Event struct {
	Op   fsnotify.Op
	Name string // base name
	Path string // full path
}

// Handler processes one event. Returned errors are logged by the supervisor.
type Handler func(ctx context.Context, ev Event) error

// HandlerError wraps a handler failure with the event that caused it.
type HandlerError struct {
	Event Event
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handling %s %s: %v", e.Event.Op, e.Event.Path, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Watcher watches a single directory. Use one Watcher per directory.
type Watcher struct {
	logger *slog.Logger

	// OnError, when set, observes every error the supervisor logs.
	OnError func(error)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	errs    chan error
	loopWg  sync.WaitGroup
	superWg sync.WaitGroup
	dir     string
}

// New returns an idle watcher.
func New(logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{logger: logger}
}

// Dir returns the watched directory, or "" when idle.
func (w *Watcher) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dir
}

// Active reports whether a watch is registered.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsw != nil
}

// Start creates dir if needed and begins delivering Create and Write events
// to handler. Starting an active watcher is an error.
func (w *Watcher) Start(ctx context.Context, dir string, handler Handler) error {
	if handler == nil {
		return errors.New("watch handler is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fsw != nil {
		return fmt.Errorf("already watching %s", w.dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure watch directory %s: %w", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.dir = dir
	w.errs = make(chan error, 64)

	w.superWg.Add(1)
	go w.supervise(w.errs)

	w.loopWg.Add(1)
	go w.loop(loopCtx, fsw, w.errs, handler)

	w.logger.Debug("watch started", "dir", dir)
	return nil
}

// Stop releases the OS watch and waits for in-flight handlers. It is a no-op
// when the watcher is idle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fsw, cancel, errs, dir := w.fsw, w.cancel, w.errs, w.dir
	w.fsw, w.cancel, w.errs, w.dir = nil, nil, nil, ""
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}

	cancel()
	err := fsw.Close()
	w.loopWg.Wait()
	close(errs)
	w.superWg.Wait()

	w.logger.Debug("watch stopped", "dir", dir)
	if err != nil {
		return fmt.Errorf("failed to close watch on %s: %w", dir, err)
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, errs chan<- error, handler Handler) {
	defer w.loopWg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if ev.Name == "" || name == "." || name == string(filepath.Separator) {
				continue
			}
			w.dispatch(ctx, errs, handler, Event{Op: ev.Op, Name: name, Path: ev.Name})
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			errs <- fmt.Errorf("watch error: %w", err)
		}
	}
}

// dispatch runs the handler, converting errors and panics into supervisor reports.
func (w *Watcher) dispatch(ctx context.Context, errs chan<- error, handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			errs <- &HandlerError{Event: ev, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := handler(ctx, ev); err != nil {
		errs <- &HandlerError{Event: ev, Err: err}
	}
}

func (w *Watcher) supervise(errs <-chan error) {
	defer w.superWg.Done()
	for err := range errs {
		w.logger.Warn("watch handler failed", "error", err)
		if w.OnError != nil {
			w.OnError(err)
		}
	}
}
