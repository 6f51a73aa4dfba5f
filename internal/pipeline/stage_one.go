package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/wesleyorama2/fusillade/internal/ctxlog"
	"github.com/wesleyorama2/fusillade/internal/naming"
	"github.com/wesleyorama2/fusillade/internal/runner"
)

// StageOne runs every script under the source root concurrently and waits for
// all of them to settle. A failing job does not cancel its siblings; the
// errors of all failed jobs are joined.
func StageOne(ctx context.Context, s *Session) error {
	logger := ctxlog.FromContext(ctx)

	scripts, err := filepath.Glob(naming.ScriptGlob(s.Config.SrcRoot))
	if err != nil {
		return fmt.Errorf("failed to discover scripts: %w", err)
	}
	if len(scripts) == 0 {
		logger.Info("no scripts found", "src", s.Config.SrcRoot)
		return nil
	}
	if err := naming.CheckCollisions(scripts, s.Key); err != nil {
		return err
	}

	logger.Info("running scripts", "count", len(scripts))

	errs := make([]error, len(scripts))
	var wg sync.WaitGroup
	for i, script := range scripts {
		job := runner.Job{
			Script:  script,
			SubKey:  naming.DeriveSubKey(script, s.Key),
			LogRoot: s.Config.LogRoot,
		}

		wg.Add(1)
		go func(i int, job runner.Job) {
			defer wg.Done()

			if err := s.Runner.Run(ctx, job); err != nil {
				logger.Error("script failed", "script", job.Script, "error", err)
				errs[i] = fmt.Errorf("script %s failed: %w", filepath.Base(job.Script), err)
				return
			}
			logger.Info("script finished", "script", job.Script, "subKey", job.SubKey)
		}(i, job)
	}

	wg.Wait()
	return errors.Join(errs...)
}
