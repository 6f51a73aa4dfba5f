package cli

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one load-testing session",
		Long: `Run executes every script in the source directory, saves manifests of the
produced reports, mails the digest and purges stale artifacts. The command
exits 1 when any stage fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			return s.orch.Run(cmd.Context())
		},
	}
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Purge every manifest and the report files it lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			return s.orch.Clean(cmd.Context())
		},
	}
}
