package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/wesleyorama2/fusillade/internal/ctxlog"
	"github.com/wesleyorama2/fusillade/internal/runner"
	"github.com/wesleyorama2/fusillade/internal/store"
)

// NewExceptionRecord describes err for the exception log.
func NewExceptionRecord(err error, now time.Time) *store.ExceptionRecord {
	return &store.ExceptionRecord{
		Details: store.ExceptionDetails{
			Message: err.Error(),
			Name:    fmt.Sprintf("%T", rootCause(err)),
			Code:    errorCode(err),
			Stack:   errorStack(err) + "\n" + string(debug.Stack()),
		},
		CreatedAt: now,
	}
}

// recordException saves err to the store. When that fails too, both errors
// go to the logger instead.
func recordException(ctx context.Context, s *Session, stage Stage, err error) {
	logger := ctxlog.FromContext(ctx)
	logger.Error("stage failed", "stage", stage, "error", err)

	rec := NewExceptionRecord(err, s.Now())
	if saveErr := s.Store.SaveException(ctx, rec); saveErr != nil {
		logger.Error("failed to record exception",
			"stage", stage,
			"error", err,
			"name", rec.Details.Name,
			"code", rec.Details.Code,
			"saveError", saveErr,
		)
	}
}

// rootCause follows the wrap chain to its end. Joined errors are followed
// through their first member.
func rootCause(err error) error {
	for {
		var next error
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			next = x.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := x.Unwrap(); len(errs) > 0 {
				next = errs[0]
			}
		}
		if next == nil {
			return err
		}
		err = next
	}
}

// errorCode is the tool exit code or errno carried by err, if any.
func errorCode(err error) string {
	var toolErr *runner.ToolError
	if errors.As(err, &toolErr) && toolErr.ExitCode >= 0 {
		return strconv.Itoa(toolErr.ExitCode)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return strconv.Itoa(int(errno))
	}
	return ""
}

func errorStack(err error) string {
	var b strings.Builder
	depth := 0
	for e := err; e != nil; depth++ {
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), e, e.Error())
		switch x := e.(type) {
		case interface{ Unwrap() error }:
			e = x.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				b.WriteString(indent(errorStack(inner), depth+1))
			}
			e = nil
		default:
			e = nil
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func indent(s string, depth int) string {
	prefix := strings.Repeat("  ", depth)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}
