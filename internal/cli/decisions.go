package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/devatlas/devatlas/internal/inboxsrv/declog"
)

var outcomeLabels = map[declog.Outcome]*color.Color{
	declog.OutcomeAccepted:   color.New(color.FgGreen),
	declog.OutcomeOutOfOrder: color.New(color.FgYellow),
	declog.OutcomeRejected:   color.New(color.FgRed),
}

// newDecisionsCmd creates the decision log printing command
func newDecisionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decisions LOG_FILE [flags]",
		Short: "Print a routing decision log",
		Long: `Print the routing decisions recorded by the router daemon. Each line
shows when an inbox object was processed, the outcome, the object key and
the reason for rejections.

Examples:
  # Print a decision log
  inboxd decisions /var/log/devatlas/decisions.log

  # Print a decision log in JSON format
  inboxd decisions /var/log/devatlas/decisions.log -j`,
		Args: cobra.ExactArgs(1),
		RunE: printDecisions,
	}
}

// printDecisions handles reading and printing a decision log file
func printDecisions(cmd *cobra.Command, args []string) error {
	entries, err := declog.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read decision log: %v", err)
	}

	if jsonOutput {
		printJSON(entries)
		return nil
	}

	for _, e := range entries {
		printDecisionPretty(e)
	}
	fmt.Printf("%d decisions\n", len(entries))
	return nil
}

// printDecisionPretty prints one decision in a human-readable format
func printDecisionPretty(e declog.Entry) {
	at := e.At
	if t, err := time.Parse(time.RFC3339, e.At); err == nil {
		at = t.Local().Format("2006-01-02 15:04:05 MST")
	}

	label, ok := outcomeLabels[e.Outcome]
	if !ok {
		label = color.New(color.FgWhite)
	}

	fmt.Printf("%s ", at)
	label.Printf("%-12s", string(e.Outcome))
	fmt.Printf(" %s", e.Key)
	if e.ProjectID != "" {
		fmt.Printf(" project=%s", e.ProjectID)
	}
	if e.Reason != "" {
		fmt.Printf(" (%s)", e.Reason)
	}
	fmt.Println()
}
