package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/devatlas/devatlas/internal/inboxsrv"
	"github.com/devatlas/devatlas/internal/inboxsrv/flows"
)

// newDevMergeCmd creates the developer merge daemon command
func newDevMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devmerge [flags]",
		Short: "Run the developer merge daemon",
		Long: `Run the developer merge daemon. It claims queued developers, validates
changed GitHub login claims, folds all of a developer's project reports
into one profile, stores the profile next to the reports and uploads it
to the search engine.

Examples:
  # Run with the default config file
  inboxd devmerge

  # Run with a specific config file
  inboxd devmerge --config ./inboxd.conf`,
		RunE: runDevMerge,
	}
}

func runDevMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	return runDaemon("devmerge", cfg, func(ctx context.Context, rt *inboxsrv.Runtime, status *flows.LoopStatus) error {
		m := flows.NewDevMerger(cfg, rt.Store, rt.DB, rt.Search, rt.Logins)
		return m.Run(ctx, status)
	})
}
