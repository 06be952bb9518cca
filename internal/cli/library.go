package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/client"
	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/spf13/cobra"
)

var libraryDeleteForce bool

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Browse and manage converted batches",
	Long: `Browse and manage the library of converted batches.

Each completed job produces one library entry holding the per-record
outcomes and references to the generated audio files.`,
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List library entries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLibraryList,
}

var libraryShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one library entry with its records",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryShow,
}

var libraryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a library entry and its audio files",
	Long: `Delete a library entry.

This also deletes every audio file the entry references and the retained
source document. Requires confirmation unless --force is used.

Examples:
  sheetvoice library delete 7c1e...
  sheetvoice library delete 7c1e... --force`,
	Args: cobra.ExactArgs(1),
	RunE: runLibraryDelete,
}

var libraryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library totals",
	Args:  cobra.NoArgs,
	RunE:  runLibraryStats,
}

func init() {
	libraryDeleteCmd.Flags().BoolVarP(&libraryDeleteForce, "force", "f", false, "skip confirmation")

	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryShowCmd)
	libraryCmd.AddCommand(libraryDeleteCmd)
	libraryCmd.AddCommand(libraryStatsCmd)
}

func runLibraryList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	entries, err := apiClient.ListLibrary(context.Background())
	if err != nil {
		return fmt.Errorf("list library: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "Library is empty")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-24s %-8s %-6s %-6s %s\n", "ID", "SOURCE", "VOICE", "ITEMS", "FAILED", "CREATED")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------------------------")
	for _, e := range entries {
		fmt.Fprintf(out, "%-36s %-24s %-8s %-6d %-6d %s\n",
			e.ID, truncateName(e.SourceName, 24), e.Voice, e.Total, e.Failed,
			e.CreatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func runLibraryShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	entry, err := apiClient.GetLibraryEntry(context.Background(), args[0])
	if client.IsNotFound(err) {
		return fmt.Errorf("library entry not found: %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("get library entry: %w", err)
	}

	fmt.Fprintf(out, "Entry: %s\n", entry.ID)
	fmt.Fprintf(out, "  Source: %s\n", entry.SourceName)
	fmt.Fprintf(out, "  Voice: %s\n", entry.Voice)
	fmt.Fprintf(out, "  Created: %s\n", entry.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Records: %d (%d succeeded, %d failed)\n", entry.Total, entry.Succeeded, entry.Failed)

	if len(entry.Outcomes) > 0 {
		fmt.Fprintln(out, "\nRecords:")
		printOutcomes(out, entry.Outcomes)
	}
	if verbose {
		fmt.Fprintf(out, "\nDownload: %s/api/library/audio/<file>\n", apiClient.Endpoint())
	}
	return nil
}

func runLibraryDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := context.Background()
	out := cmd.OutOrStdout()

	entry, err := apiClient.GetLibraryEntry(ctx, id)
	if client.IsNotFound(err) {
		return fmt.Errorf("library entry not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("get library entry: %w", err)
	}

	if !libraryDeleteForce {
		fmt.Fprintf(out, "About to delete: %s (%s, %d audio files)\n", entry.SourceName, entry.ID, len(entry.AudioRefs()))
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := apiClient.DeleteLibraryEntry(ctx, entry.ID); err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("library entry not found or already deleted")
		}
		return fmt.Errorf("delete library entry: %w", err)
	}

	fmt.Fprintf(out, "Deleted: %s\n", entry.SourceName)
	return nil
}

func runLibraryStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	st, err := apiClient.LibraryStats(context.Background())
	if err != nil {
		return fmt.Errorf("library stats: %w", err)
	}

	fmt.Fprintf(out, "Entries:      %d\n", st.TotalLibraries)
	fmt.Fprintf(out, "Records:      %d\n", st.TotalItems)
	fmt.Fprintf(out, "Succeeded:    %d\n", st.Succeeded)
	fmt.Fprintf(out, "Failed:       %d\n", st.Failed)
	fmt.Fprintf(out, "Success rate: %.1f%%\n", st.SuccessRate)
	fmt.Fprintf(out, "Audio files:  %d\n", st.AudioFiles)
	return nil
}

// printOutcomes renders one line per record outcome.
func printOutcomes(out io.Writer, outcomes []models.Outcome) {
	for _, o := range outcomes {
		switch {
		case !o.Success:
			fmt.Fprintf(out, "  ✗ %-16s %s\n", o.ID, o.Error)
		case o.Method == models.MethodFallback:
			fmt.Fprintf(out, "  ~ %-16s %s (%s)\n", o.ID, o.AudioRef, o.Note)
		default:
			fmt.Fprintf(out, "  ✓ %-16s %s\n", o.ID, o.AudioRef)
		}
	}
}

func truncateName(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
