package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status and runtime metrics",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	st, err := apiClient.Status(context.Background())
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	fmt.Fprintf(out, "Server: %s\n", apiClient.Endpoint())
	fmt.Fprintf(out, "  Uptime: %s\n", (time.Duration(st.Metrics.UptimeSeconds) * time.Second).String())
	if st.Provider.Configured {
		fmt.Fprintf(out, "  Speech service: configured (%s)\n", st.Provider.Region)
	} else {
		fmt.Fprintln(out, "  Speech service: fallback mode")
	}
	fmt.Fprintf(out, "  %s\n", st.Provider.Message)
	fmt.Fprintf(out, "  Active jobs: %d\n", st.ActiveJobs)
	fmt.Fprintf(out, "  Jobs: %d submitted, %d completed, %d failed\n",
		st.Metrics.JobsSubmitted, st.Metrics.JobsCompleted, st.Metrics.JobsFailed)

	fmt.Fprintln(out, "\nOperations:")
	printOp(out, "primary synthesis", st.Metrics.SynthPrimary)
	printOp(out, "placeholder", st.Metrics.SynthFallback)
	printOp(out, "extraction", st.Metrics.Extract)
	printOp(out, "archive save", st.Metrics.ArchiveSave)
	return nil
}

func printOp(out io.Writer, name string, op *metrics.OperationSnapshot) {
	if op == nil {
		fmt.Fprintf(out, "  %-18s -\n", name)
		return
	}
	fmt.Fprintf(out, "  %-18s %d calls, %d errors, avg %.1fms, max %dms\n",
		name, op.Count, op.Errors, op.AvgTimeMs, op.MaxTimeMs)
}
