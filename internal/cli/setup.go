package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/fusillade/internal/config"
	"github.com/wesleyorama2/fusillade/internal/ctxlog"
	"github.com/wesleyorama2/fusillade/internal/mailer"
	"github.com/wesleyorama2/fusillade/internal/output"
	"github.com/wesleyorama2/fusillade/internal/pipeline"
	"github.com/wesleyorama2/fusillade/internal/runner"
	"github.com/wesleyorama2/fusillade/internal/store"
	"github.com/wesleyorama2/fusillade/internal/store/mongostore"
	"github.com/wesleyorama2/fusillade/internal/store/sqlstore"
)

// Constructors of the external collaborators. Tests replace them.
var (
	openStore    = defaultOpenStore
	newMailer    = defaultMailer
	newJobRunner = defaultJobRunner
)

// loadConfig resolves the configuration: file, then environment, then flags.
// Missing required keys are reported before anything else starts. The mailer
// section is only checked when mailing is set.
func loadConfig(cmd *cobra.Command, mailing bool) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	cfg, err := config.LoadConfig(path, !flags.Changed("config"))
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, os.LookupEnv)

	if v, _ := flags.GetString("log-dir"); v != "" {
		cfg.Fusillade.Log = v
	}
	if v, _ := flags.GetString("src-dir"); v != "" {
		cfg.Fusillade.Src = v
	}
	if v, _ := flags.GetString("store"); v != "" {
		cfg.Store.Driver = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.Logging.Format = v
	}

	validate := cfg.Validate
	if !mailing {
		validate = cfg.ValidateForCleanup
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultOpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		st, err := mongostore.Open(ctx, mongostore.Options{
			URI:            cfg.Store.URI,
			Database:       cfg.Store.Database,
			ConnectTimeout: time.Duration(cfg.Store.Options.ConnectTimeout),
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlstore.Open(cfg.Store.URI)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

func defaultMailer(cfg *config.Config) (mailer.Mailer, error) {
	t := cfg.Mailer.Transport
	m, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:               t.Host,
		Port:               t.Port,
		Username:           t.Auth.User,
		Password:           t.Auth.Pass,
		InsecureSkipVerify: t.InsecureSkipVerify,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func defaultJobRunner(cfg *config.Config) pipeline.JobRunner {
	return &runner.Runner{
		Command:    cfg.Runner.Command,
		RunArgs:    cfg.Runner.RunArgs,
		ReportArgs: cfg.Runner.ReportArgs,
		Dir:        cfg.Runner.Dir,
		Timeout:    time.Duration(cfg.Runner.Timeout),
	}
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		LogRoot: cfg.Fusillade.Log,
		SrcRoot: cfg.Fusillade.Src,
		Mail: pipeline.MailConfig{
			From:    cfg.Mailer.From,
			To:      cfg.Mailer.To,
			Cc:      cfg.Mailer.Cc,
			Subject: cfg.Mailer.Subject,
		},
	}
}

// session holds what a command needs to drive the orchestrator.
type session struct {
	orch   *pipeline.Orchestrator
	store  store.Store
	logger *slog.Logger
}

func (s *session) close(ctx context.Context) {
	if err := s.store.Close(ctx); err != nil {
		s.logger.Warn("failed to close store", "error", err)
	}
}

// newSession loads the configuration and wires the collaborators. Without
// mailing no SMTP settings are needed and nothing is sent.
func newSession(cmd *cobra.Command, mailing bool) (*session, error) {
	cfg, err := loadConfig(cmd, mailing)
	if err != nil {
		return nil, err
	}

	logger := ctxlog.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	var m mailer.Mailer = mailer.NopMailer{}
	if mailing {
		if m, err = newMailer(cfg); err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("failed to configure mailer: %w", err)
		}
	}

	noColor, _ := cmd.Flags().GetBool("no-color")
	orch, err := pipeline.New(pipelineConfig(cfg),
		pipeline.WithStore(st),
		pipeline.WithMailer(m),
		pipeline.WithRunner(newJobRunner(cfg)),
		pipeline.WithLogger(logger),
		pipeline.WithObserver(output.NewConsole(cmd.OutOrStdout(), noColor)),
	)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	return &session{orch: orch, store: st, logger: logger}, nil
}
