package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/fusillade/internal/config"
	"github.com/wesleyorama2/fusillade/internal/mailer"
	"github.com/wesleyorama2/fusillade/internal/pipeline"
	"github.com/wesleyorama2/fusillade/internal/runner"
	"github.com/wesleyorama2/fusillade/internal/store"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []*mailer.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg *mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type scriptRunner struct {
	fail error
}

func (r *scriptRunner) Run(ctx context.Context, job runner.Job) error {
	if r.fail != nil {
		return r.fail
	}
	for _, p := range []string{job.RawReport(), job.RenderedReport()} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(job.RawReport(), []byte(`{"aggregate":{}}`), 0644); err != nil {
		return err
	}
	return os.WriteFile(job.RenderedReport(), []byte("<html></html>"), 0644)
}

// keepOpen lets tests inspect the store after the command closed it.
type keepOpen struct {
	*store.MemoryStore
}

func (keepOpen) Close(ctx context.Context) error { return nil }

type fakes struct {
	store  *store.MemoryStore
	mailer *recordingMailer
	runner *scriptRunner
}

func installFakes(t *testing.T) *fakes {
	t.Helper()
	f := &fakes{
		store:  store.NewMemoryStore(),
		mailer: &recordingMailer{},
		runner: &scriptRunner{},
	}

	origStore, origMailer, origRunner := openStore, newMailer, newJobRunner
	t.Cleanup(func() {
		openStore, newMailer, newJobRunner = origStore, origMailer, origRunner
	})

	openStore = func(ctx context.Context, cfg *config.Config) (store.Store, error) {
		if cfg.Store.Driver != config.DriverMemory {
			return nil, fmt.Errorf("unexpected driver %s", cfg.Store.Driver)
		}
		return keepOpen{f.store}, nil
	}
	newMailer = func(cfg *config.Config) (mailer.Mailer, error) { return f.mailer, nil }
	newJobRunner = func(cfg *config.Config) pipeline.JobRunner { return f.runner }
	return f
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fusillade.yaml")
	data := fmt.Sprintf(`
fusillade:
  log: %s
  src: %s
store:
  driver: memory
mailer:
  transport:
    host: smtp.example.com
    auth:
      user: reports@example.com
      pass: secret
  to: [ops@example.com]
logging:
  level: error
`, filepath.Join(dir, "log"), filepath.Join(dir, "src"))
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	return path
}

func execute(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "fusillade "+version)
}

func TestRunCommand(t *testing.T) {
	f := installFakes(t)
	dir := t.TempDir()
	path := writeConfig(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "load.json"), []byte(`{}`), 0644))

	out, err := execute("run", "--config", path, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "fusillade session")
	assert.Contains(t, out, "Session complete")

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
	assert.Equal(t, "reports@example.com", msg.From)
	require.Len(t, msg.Attachments, 1)
	assert.Regexp(t, `^load-\d{8}-\d{6}\.html$`, msg.Attachments[0].Filename)
}

func TestRunCommandFlagOverrides(t *testing.T) {
	f := installFakes(t)
	dir := t.TempDir()
	path := writeConfig(t, dir)

	other := filepath.Join(dir, "elsewhere")
	require.NoError(t, os.MkdirAll(filepath.Join(other, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(other, "src", "a.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(other, "src", "b.json"), []byte(`{}`), 0644))

	_, err := execute("run", "--config", path,
		"--src-dir", filepath.Join(other, "src"),
		"--log-dir", filepath.Join(other, "log"),
	)
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	assert.Len(t, f.mailer.sent[0].Attachments, 2)
	assert.DirExists(t, filepath.Join(other, "log", "html"))
}

func TestRunCommandStageFailure(t *testing.T) {
	f := installFakes(t)
	f.runner.fail = &runner.ToolError{Step: runner.StepRun, Command: "artillery run", ExitCode: 1, Err: errors.New("exit status 1")}
	dir := t.TempDir()
	path := writeConfig(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "load.json"), []byte(`{}`), 0644))

	out, err := execute("run", "--config", path)
	require.Error(t, err)
	assert.Equal(t, 1, pipeline.ExitCode(err))
	assert.Contains(t, out, "Running scripts failed")

	assert.Empty(t, f.mailer.sent)
	assert.Len(t, f.store.Exceptions(), 1)
}

func TestRunCommandInvalidConfig(t *testing.T) {
	installFakes(t)
	path := filepath.Join(t.TempDir(), "fusillade.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: mongo\n"), 0644))

	_, err := execute("run", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "store.uri")
}

func TestRunCommandMissingExplicitConfig(t *testing.T) {
	installFakes(t)

	_, err := execute("run", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestCleanCommand(t *testing.T) {
	f := installFakes(t)
	dir := t.TempDir()
	path := writeConfig(t, dir)

	stale := filepath.Join(dir, "stale.html")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	require.NoError(t, f.store.SaveManifest(context.Background(), &store.Manifest{
		Kind:         store.KindHTML,
		SessionKey:   "19990101-000000",
		FilePathList: []string{stale},
	}))

	_, err := execute("clean", "--config", path)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)

	left, err := f.store.FindManifests(context.Background(), store.KindHTML, store.KeyNe(""))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCleanCommandWithoutMailer(t *testing.T) {
	f := installFakes(t)
	newMailer = func(cfg *config.Config) (mailer.Mailer, error) {
		return nil, errors.New("clean must not configure a mailer")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "fusillade.yaml")
	data := fmt.Sprintf("fusillade:\n  log: %s\n  src: %s\nstore:\n  driver: memory\n",
		filepath.Join(dir, "log"), filepath.Join(dir, "src"))
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	stale := filepath.Join(dir, "stale.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0644))
	require.NoError(t, f.store.SaveManifest(context.Background(), &store.Manifest{
		Kind:         store.KindJSON,
		SessionKey:   "19990101-000000",
		FilePathList: []string{stale},
	}))

	_, err := execute("clean", "--config", path)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)

	_, err = execute("run", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailer.transport.host")
}
