package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/wesleyorama2/fusillade/internal/pipeline"
)

// Console prints one line per session state change. It implements
// pipeline.Observer.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	noColor bool
	colors  *ColorScheme
	now     func() time.Time
	started map[pipeline.State]time.Time
}

// NewConsole writes to w. Colors are used only when w is a terminal and
// noColor is false.
func NewConsole(w io.Writer, noColor bool) *Console {
	if w == nil {
		w = os.Stdout
	}
	noColor = noColor || !isTerminal(w)

	colors := DefaultColorScheme()
	if noColor {
		colors = NoColorScheme()
	}
	return &Console{
		w:       w,
		noColor: noColor,
		colors:  colors,
		now:     time.Now,
		started: make(map[pipeline.State]time.Time),
	}
}

var stageLabels = map[pipeline.State]string{
	pipeline.StateStageOneRunning: "Running scripts",
	pipeline.StateStageTwoRunning: "Collecting reports",
	pipeline.StateCleanUpRunning:  "Cleaning up",
}

// StateChanged implements pipeline.Observer.
func (c *Console) StateChanged(from, to pipeline.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if label, ok := stageLabels[from]; ok && to != pipeline.StateExit1 {
		elapsed := now.Sub(c.started[from])
		fmt.Fprintf(c.w, "%s %s %s\n", SuccessIcon(c.noColor), label,
			c.colors.Muted.Sprintf("(%s)", elapsed.Round(time.Millisecond)))
	}

	switch to {
	case pipeline.StateStageOneRunning, pipeline.StateStageTwoRunning, pipeline.StateCleanUpRunning:
		c.started[to] = now
		fmt.Fprintf(c.w, "%s %s\n", ProgressIcon(c.noColor), c.colors.Stage.Sprint(stageLabels[to]))
	case pipeline.StateExit0:
		fmt.Fprintf(c.w, "%s %s\n", SuccessIcon(c.noColor), c.colors.Success.Sprint("Session complete"))
	case pipeline.StateExit1:
		label := stageLabels[from]
		if label == "" {
			label = from.String()
		}
		fmt.Fprintf(c.w, "%s %s: %v\n", ErrorIcon(c.noColor), c.colors.Error.Sprint(label+" failed"), err)
	}
}

// SessionStarted prints the session banner. It implements
// pipeline.SessionObserver.
func (c *Console) SessionStarted(key string, cfg pipeline.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s\n", c.colors.Highlight.Sprint("fusillade session"), c.colors.Session.Sprint(key))
	fmt.Fprintf(c.w, "  %s %s\n", c.colors.Muted.Sprint("scripts:"), cfg.SrcRoot)
	fmt.Fprintf(c.w, "  %s %s\n", c.colors.Muted.Sprint("reports:"), cfg.LogRoot)
}
