// Package cli provides the command-line interface for sheetvoice.
package cli

import (
	"github.com/raphaelgruber/sheetvoice/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global API client
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sheetvoice",
	Short: "Turn spreadsheets of text into speech",
	Long: `Sheetvoice converts the rows of a CSV or Excel document into MP3 audio.

Each row needs an id and a text column. Uploads are processed in the
background by a sheetvoice server; finished batches are kept in a library
from which audio can be downloaded or deleted.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $SHEETVOICE_SERVER_URL or http://localhost:3001)")

	// Add subcommands
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(voicesCmd)
	rootCmd.AddCommand(statusCmd)
}
