package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	submitVoice   string
	submitNoWatch bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Upload a CSV or Excel document for conversion",
	Long: `Upload a CSV or Excel document and convert every row to speech.

The document needs a header row with an "id" column and a "text" column
(matched case-insensitively). Only the first sheet of a workbook is read.
Progress is shown until the job finishes; press Ctrl+C to leave it running
in the background.

Examples:
  sheetvoice submit lines.csv
  sheetvoice submit script.xlsx --voice Matthew
  sheetvoice submit lines.csv --no-watch`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitVoice, "voice", "", "voice id (server default if empty)")
	submitCmd.Flags().BoolVar(&submitNoWatch, "no-watch", false, "return after upload without watching progress")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := apiClient.Upload(ctx, path, submitVoice)
	if err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	fmt.Fprintf(out, "Submitted %s as job %s\n", filepath.Base(path), res.JobID)

	if submitNoWatch {
		fmt.Fprintf(out, "Use 'sheetvoice jobs %s' to check status.\n", res.JobID)
		return nil
	}

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return RunJobProgress(apiClient, res.JobID)
	}
	return watchJob(ctx, out, res.JobID)
}

// watchJob prints one line per progress change, for non-interactive output.
func watchJob(ctx context.Context, out io.Writer, jobID string) error {
	var (
		last    models.Job
		printed = -1
	)
	err := apiClient.WatchJob(ctx, jobID, func(job models.Job) error {
		last = job
		if job.Status == models.JobStatusSynthesizing && job.Completed != printed {
			printed = job.Completed
			fmt.Fprintf(out, "[%s] %d/%d %s\n", job.Status, job.Completed, job.Total, job.Current)
		}
		return nil
	})
	if ctx.Err() != nil {
		fmt.Fprintf(out, "\nJob %s continues in background.\nUse 'sheetvoice jobs %s' to check status.\n", jobID, jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}

	fmt.Fprint(out, jobSummary(last))
	if last.Status == models.JobStatusFailed {
		return fmt.Errorf("job failed: %s", last.Error)
	}
	return nil
}

// outcomeCounts tallies a job's outcomes, counting placeholder audio separately.
func outcomeCounts(job models.Job) (succeeded, failed, fallback int) {
	succeeded, failed = models.Tally(job.Outcomes)
	for _, o := range job.Outcomes {
		if o.Success && o.Method == models.MethodFallback {
			fallback++
		}
	}
	return succeeded, failed, fallback
}

// jobSummary renders the result block shown after a job finishes.
func jobSummary(job models.Job) string {
	if job.Status != models.JobStatusCompleted {
		return fmt.Sprintf("Job %s %s: %s\n", job.ID, job.Status, job.Error)
	}
	succeeded, failed, fallback := outcomeCounts(job)
	s := fmt.Sprintf("Completed %s\n", job.ID)
	s += fmt.Sprintf("  Records:     %d\n", job.Total)
	s += fmt.Sprintf("  Succeeded:   %d\n", succeeded)
	s += fmt.Sprintf("  Failed:      %d\n", failed)
	if fallback > 0 {
		s += fmt.Sprintf("  Placeholder: %d\n", fallback)
	}
	s += fmt.Sprintf("  Library ID:  %s\n", job.LibraryRef)
	return s
}
