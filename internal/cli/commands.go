package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/devatlas/devatlas/internal/common/logtrace"
)

var (
	// Global flags
	jsonOutput   bool
	configFile   string
	debugLogging bool
)

// ErrAlreadyHandled signals that the command already printed its error and
// Execute should only set the exit code.
var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

// DefaultConfigFile is where the daemons look for their configuration when
// --config is not given.
const DefaultConfigFile = "/etc/devatlas/inboxd.conf"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inboxd [command] [flags]",
	Short: "DevAtlas inbox services - report routing and developer profile merging",
	Long: `inboxd runs the DevAtlas inbox services: the router daemon that turns
signed report submissions into per-project reports, and the devmerge daemon
that folds those reports into searchable developer profiles.

Examples:
  # Run the inbox routing daemon
  inboxd router

  # Run the developer merge daemon
  inboxd devmerge

  # Apply database migrations
  inboxd migrate

  # Query a running daemon's counters
  inboxd status`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugLogging {
			logtrace.SetDebugLevel()
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// Set up persistent flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", DefaultConfigFile, "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")

	// Add commands
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRouterCmd())
	rootCmd.AddCommand(newDevMergeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDecisionsCmd())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true // Prevent Cobra from printing the error
	rootCmd.SilenceUsage = true  // Prevent Cobra from printing usage on error

	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			kv := map[string]string{
				"error": err.Error(),
			}
			printJSON(kv)
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// newVersionCmd creates and returns a new version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of inboxd",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				kv := map[string]string{
					"version":     getCLIVersion(),
					"config_file": configFile,
				}
				printJSON(kv)
			} else {
				cmd.Printf("inboxd %s\n", getCLIVersion())
				cmd.Printf("Config file: %s\n", configFile)
			}
		},
	}
}

// printJSON prints the given map as JSON to stdout
func printJSON(data interface{}) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
}

// getCLIVersion returns the current version
func getCLIVersion() string {
	return "v0.1.0"
}
