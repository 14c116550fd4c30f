package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devatlas/devatlas/internal/common/httpclient"
	"github.com/devatlas/devatlas/internal/inboxsrv/flows"
)

var statusAddr string

// opsEndpoint points the http client at a daemon's localhost listener.
type opsEndpoint struct {
	addr string
}

func (e *opsEndpoint) GetEndpointURL() string { return "http://" + e.addr }
func (e *opsEndpoint) GetAuthToken() string   { return "" }
func (e *opsEndpoint) GetUserAgent() string   { return "inboxd" }

// newStatusCmd creates the daemon status command
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [flags]",
		Short: "Query a running daemon's loop counters",
		Long: `Query the ops listener of a running daemon and print its loop counters:
cycles, processed jobs, failures, the consecutive-error streak and jobs
currently in flight.

Examples:
  # Query the daemon at the configured listen address
  inboxd status

  # Query a specific listener
  inboxd status --addr 127.0.0.1:7042

  # Get the counters in JSON format
  inboxd status -j`,
		RunE: getStatus,
	}
	cmd.Flags().StringVar(&statusAddr, "addr", "", "Ops listener address (defaults to the configured listen_address)")
	return cmd
}

// getStatus handles retrieving daemon status information
func getStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := loadDaemonConfig()
		if err != nil {
			return err
		}
		addr = cfg.Flows.ListenAddress
	}
	if addr == "" {
		return fmt.Errorf("no ops listener address configured, pass --addr")
	}

	client := httpclient.NewClient(&opsEndpoint{addr: addr})

	opts := httpclient.RequestOptions{
		Method: "GET",
		Path:   "status",
	}

	response, _, err := client.DoRequest(cmd.Context(), opts)
	if err != nil {
		if jsonOutput {
			kv := map[string]string{
				"error": "unable to reach the daemon: " + err.Error(),
			}
			printJSON(kv)
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: unable to reach the daemon at %s: %v\n", addr, err)
		}
		return ErrAlreadyHandled
	}

	var snap flows.StatusSnapshot
	if err := json.Unmarshal(response, &snap); err != nil {
		return fmt.Errorf("failed to parse response: %v", err)
	}

	if jsonOutput {
		printJSON(snap)
		return nil
	}
	printStatusPretty(snap)
	return nil
}

// printStatusPretty prints the loop counters in a human-readable format
func printStatusPretty(snap flows.StatusSnapshot) {
	fmt.Printf("Loop: %s\n", snap.Loop)
	if startedAt, err := time.Parse(time.RFC3339, snap.StartedAt); err == nil {
		fmt.Printf("Started: %s\n", startedAt.Local().Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Printf("Started: %s\n", snap.StartedAt)
	}
	fmt.Printf("Cycles: %d\n", snap.Cycles)
	fmt.Printf("Jobs: %d\n", snap.Jobs)
	fmt.Printf("Failures: %d\n", snap.Failures)
	fmt.Printf("In flight: %d\n", snap.InFlight)

	if snap.ConsecutiveErrors > 0 {
		errorLabel.Printf("Consecutive errors: %d\n", snap.ConsecutiveErrors)
	} else {
		fmt.Printf("Consecutive errors: 0\n")
	}

	if snap.LastCycleAt != "" {
		fmt.Printf("Last cycle: %s (%d ms)\n", snap.LastCycleAt, snap.LastCycleMillis)
	} else {
		fmt.Println("Last cycle: none yet")
	}
}
