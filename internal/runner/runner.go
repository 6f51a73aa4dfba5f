// Package runner drives the external load generator: one "run" invocation
// producing the raw JSON report, then one "report" invocation rendering it to
// HTML.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/wesleyorama2/fusillade/internal/ctxlog"
	"github.com/wesleyorama2/fusillade/internal/naming"
)

// Placeholders substituted inside RunArgs and ReportArgs.
const (
	PlaceholderScript = "{script}"
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
)

// Defaults match the artillery command line.
var (
	DefaultCommand    = "artillery"
	DefaultRunArgs    = []string{"run", PlaceholderScript, "-o", PlaceholderOutput}
	DefaultReportArgs = []string{"report", PlaceholderInput, "-o", PlaceholderOutput}
)

// maxOutput bounds how much combined output is kept on a ToolError.
const maxOutput = 4096

// Step names an invocation within a job.
type Step string

const (
	StepRun    Step = "run"
	StepReport Step = "report"
)

// ErrTimedOut is wrapped by a ToolError whose invocation exceeded Runner.Timeout.
var ErrTimedOut = errors.New("timed out")

// ToolError reports a failed invocation of the external tool.
type ToolError struct {
	Step     Step
	Command  string
	ExitCode int // -1 when the process never ran to completion
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s step failed: %s: %v", e.Step, e.Command, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Job is one test script and the sub key its reports are named after.
type Job struct {
	Script  string
	SubKey  string
	LogRoot string
}

// RawReport returns the raw report path of the job.
func (j Job) RawReport() string { return naming.RawReportPath(j.LogRoot, j.SubKey) }

// RenderedReport returns the rendered report path of the job.
func (j Job) RenderedReport() string { return naming.RenderedReportPath(j.LogRoot, j.SubKey) }

// Runner executes jobs. The zero value runs artillery from the current
// directory without a timeout.
type Runner struct {
	Command    string
	RunArgs    []string
	ReportArgs []string
	// Dir is the working directory; paths are passed relative to it when possible.
	Dir string
	// Timeout bounds each invocation. Zero means no bound.
	Timeout time.Duration
	// Env is appended to the parent environment.
	Env []string
}

// Run executes the run step then the report step for job. Both must exit 0.
func (r *Runner) Run(ctx context.Context, job Job) error {
	logger := ctxlog.FromContext(ctx).With("script", job.Script, "subKey", job.SubKey)

	raw, rendered := job.RawReport(), job.RenderedReport()
	for _, dir := range []string{filepath.Dir(raw), filepath.Dir(rendered)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	runArgs := substitute(r.runArgs(), map[string]string{
		PlaceholderScript: r.rel(job.Script),
		PlaceholderOutput: r.rel(raw),
	})
	if err := r.invoke(ctx, logger, StepRun, runArgs); err != nil {
		return err
	}

	reportArgs := substitute(r.reportArgs(), map[string]string{
		PlaceholderInput:  r.rel(raw),
		PlaceholderOutput: r.rel(rendered),
	})
	return r.invoke(ctx, logger, StepReport, reportArgs)
}

func (r *Runner) invoke(ctx context.Context, logger *slog.Logger, step Step, args []string) error {
	command := r.command()
	line := strings.TrimSpace(command + " " + strings.Join(args, " "))

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = 5 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	logger.Debug("invoking external tool", "step", step, "command", line)
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		logger.Info("external tool finished", "step", step, "elapsed", elapsed.Round(time.Millisecond))
		return nil
	}

	toolErr := &ToolError{Step: step, Command: line, ExitCode: -1, Output: tail(out.String()), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	if r.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		toolErr.Err = fmt.Errorf("%w after %s", ErrTimedOut, r.Timeout)
	}
	logger.Error("external tool failed", "step", step, "exitCode", toolErr.ExitCode, "error", toolErr.Err)
	return toolErr
}

func (r *Runner) command() string {
	if r.Command == "" {
		return DefaultCommand
	}
	return r.Command
}

func (r *Runner) runArgs() []string {
	if len(r.RunArgs) == 0 {
		return DefaultRunArgs
	}
	return r.RunArgs
}

func (r *Runner) reportArgs() []string {
	if len(r.ReportArgs) == 0 {
		return DefaultReportArgs
	}
	return r.ReportArgs
}

// rel expresses p relative to the working directory unless that would climb
// out of it.
func (r *Runner) rel(p string) string {
	base := r.Dir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return p
		}
		base = wd
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs
	}
	return rel
}

func substitute(args []string, values map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		for placeholder, v := range values {
			arg = strings.ReplaceAll(arg, placeholder, v)
		}
		out[i] = arg
	}
	return out
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxOutput {
		return s
	}
	return "..." + s[len(s)-maxOutput:]
}
