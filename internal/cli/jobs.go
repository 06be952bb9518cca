package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/client"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect conversion jobs",
	Long: `List all live conversion jobs or inspect a specific job by ID.

Jobs are kept in server memory for a limited time after they start.

Examples:
  sheetvoice jobs              # List all jobs
  sheetvoice jobs job_3f2a...  # Show details for one job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		return showJob(ctx, out, args[0])
	}
	return listJobs(ctx, out)
}

func listJobs(ctx context.Context, out io.Writer) error {
	jobs, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "%-42s %-13s %-10s %s\n", "ID", "STATUS", "PROGRESS", "STARTED")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------")

	for _, job := range jobs {
		progress := ""
		if job.Total > 0 {
			progress = fmt.Sprintf("%d/%d", job.Completed, job.Total)
		}
		started := job.StartTime.Local().Format("15:04:05")
		fmt.Fprintf(out, "%-42s %-13s %-10s %s\n", job.ID, job.Status, progress, started)
	}

	return nil
}

func showJob(ctx context.Context, out io.Writer, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if client.IsNotFound(err) {
		return fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "  Status: %s\n", job.Status)
	if job.Total > 0 {
		fmt.Fprintf(out, "  Progress: %d/%d (%d%%)\n", job.Completed, job.Total, job.Progress)
	}
	if job.Current != "" {
		fmt.Fprintf(out, "  Current: %s\n", job.Current)
	}
	fmt.Fprintf(out, "  Started: %s\n", job.StartTime.Format(time.RFC3339))
	if job.EndTime != nil {
		fmt.Fprintf(out, "  Finished: %s\n", job.EndTime.Format(time.RFC3339))
		fmt.Fprintf(out, "  Duration: %s\n", job.EndTime.Sub(job.StartTime).Round(time.Millisecond))
	}
	if job.LibraryRef != "" {
		fmt.Fprintf(out, "  Library ID: %s\n", job.LibraryRef)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", job.Error)
	}

	if len(job.Outcomes) > 0 {
		fmt.Fprintln(out, "\nRecords:")
		printOutcomes(out, job.Outcomes)
	}

	return nil
}
