package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/devatlas/devatlas/internal/inboxsrv"
	"github.com/devatlas/devatlas/internal/inboxsrv/flows"
	"github.com/devatlas/devatlas/internal/inboxsrv/router"
)

// newRouterCmd creates the inbox routing daemon command
func newRouterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "router [flags]",
		Short: "Run the inbox routing daemon",
		Long: `Run the inbox routing daemon. It polls the inbox prefix for submitted
reports, resolves each report to a project through the commit ledger,
relocates accepted reports next to their project and queues the developer
for a profile rebuild. Failed submissions are quarantined under the
rejected prefix.

Examples:
  # Run with the default config file
  inboxd router

  # Run with a specific config file
  inboxd router --config ./inboxd.conf`,
		RunE: runRouter,
	}
}

func runRouter(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	return runDaemon("router", cfg, func(ctx context.Context, rt *inboxsrv.Runtime, status *flows.LoopStatus) error {
		r := router.NewRouter(cfg, rt.Store, rt.DB, rt.Decisions)
		return r.Run(ctx, status)
	})
}
