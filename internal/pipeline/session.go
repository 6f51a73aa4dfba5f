// Package pipeline sequences one load-testing session: watch the report
// directories, execute every script, collect and mail the reports, then purge
// the artifacts of this and any interrupted earlier session.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/wesleyorama2/fusillade/internal/mailer"
	"github.com/wesleyorama2/fusillade/internal/runner"
	"github.com/wesleyorama2/fusillade/internal/store"
)

// Config is the immutable input of a session.
type Config struct {
	// LogRoot holds the json and html report directories.
	LogRoot string
	// SrcRoot holds the test scripts.
	SrcRoot string
	Mail    MailConfig
}

// MailConfig addresses the digest email.
type MailConfig struct {
	From string
	To   []string
	Cc   []string
	// Subject may reference {startDate} and {startTime}.
	Subject string
}

// JobRunner executes one script job.
type JobRunner interface {
	Run(ctx context.Context, job runner.Job) error
}

// Session is the state shared by every stage of one run. Key and the handles
// are fixed for the lifetime of the run.
type Session struct {
	Key       string
	StartedAt time.Time
	Config    Config
	Store     store.Store
	Mailer    mailer.Mailer
	Runner    JobRunner
	Logger    *slog.Logger

	now func() time.Time
}

// Now returns the session clock's current time.
func (s *Session) Now() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
