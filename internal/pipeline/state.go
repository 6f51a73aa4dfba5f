package pipeline

import (
	"fmt"
)

// State is a step of the session state machine.
type State int

const (
	StateInit State = iota
	StateWatchOpen
	StateStageOneRunning
	StateStageTwoRunning
	StateCleanUpRunning
	StateWatchClosed
	StateExit0
	StateExit1
)

var stateNames = map[State]string{
	StateInit:            "Init",
	StateWatchOpen:       "WatchOpen",
	StateStageOneRunning: "StageOneRunning",
	StateStageTwoRunning: "StageTwoRunning",
	StateCleanUpRunning:  "CleanUpRunning",
	StateWatchClosed:     "WatchClosed",
	StateExit0:           "Exit(0)",
	StateExit1:           "Exit(1)",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateExit0 || s == StateExit1
}

// Observer is notified of every state transition. err is non-nil only when
// entering StateExit1.
type Observer interface {
	StateChanged(from, to State, err error)
}

// SessionObserver is optionally implemented by an Observer that wants to
// know the key of each session as it starts.
type SessionObserver interface {
	SessionStarted(key string, cfg Config)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(from, to State, err error)

func (f ObserverFunc) StateChanged(from, to State, err error) { f(from, to, err) }

// Stage names the part of the run that failed.
type Stage string

const (
	StageWatch      Stage = "watch"
	StageExecution  Stage = "execution"
	StageCollection Stage = "collection"
	StageCleanUp    Stage = "cleanup"
)

// StageError is returned by Run when a stage fails.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ExitCode maps the result of Run to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
