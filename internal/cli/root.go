package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/fusillade/internal/config"
)

var version = "0.1.0"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fusillade",
		Short: "Run load-test sessions, mail the reports, purge stale artifacts",
		Long: `Fusillade drives an external load generator (artillery by default) over every
script in the source directory, records the raw and rendered reports, mails
a digest with the rendered reports attached and then purges the artifacts of
this and any interrupted earlier session.

  fusillade run --config fusillade.yaml
  fusillade clean --store sqlite`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", config.DefaultPath, "configuration file (yaml or json)")
	flags.String("log-dir", "", "report root, overrides fusillade.log")
	flags.String("src-dir", "", "script directory, overrides fusillade.src")
	flags.String("store", "", "store driver (mongo, sqlite, memory), overrides store.driver")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.Bool("no-color", false, "disable colored output")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newVersionCmd())

	cmd.SetVersionTemplate(fmt.Sprintf("%s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH))
	cmd.Version = version

	return cmd
}

// Execute runs the command line until completion or an interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "fusillade %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
