package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/warydiaz/json-ingestion-platform/internal/service"
)

var (
	jobsHistory bool
	jobsLimit   int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect ingestion jobs",
	Long: `List the ingestion runs tracked by the server or inspect one by ID.

Examples:
  ingestctl jobs                 # Runs since the server started
  ingestctl jobs --history       # Persisted run history
  ingestctl jobs 0192f3...       # Show details for one run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().BoolVar(&jobsHistory, "history", false, "show persisted run history")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 50, "max history entries")
}

func runJobs(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showJob(cmd, args[0])
	}
	if jobsHistory {
		return listHistory(cmd)
	}
	return listJobs(cmd)
}

func listJobs(cmd *cobra.Command) error {
	jobs, err := apiClient.ListJobs(cmd.Context())
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	out := cmd.OutOrStdout()

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-16s %-10s %-8s %10s %s\n", "ID", "DATASET", "STATUS", "TRIGGER", "RECORDS", "STARTED")
	fmt.Fprintln(out, "------------------------------------------------------------------------------------------------")
	for _, job := range jobs {
		fmt.Fprintf(out, "%-36s %-16s %-10s %-8s %10d %s\n",
			job.ID, job.DatasetID, job.Status, job.Trigger, job.Records, job.StartedAt.Local().Format("15:04:05"))
	}
	return nil
}

func listHistory(cmd *cobra.Command) error {
	runs, err := apiClient.JobHistory(cmd.Context(), jobsLimit)
	if err != nil {
		return fmt.Errorf("job history: %w", err)
	}
	out := cmd.OutOrStdout()

	if len(runs) == 0 {
		fmt.Fprintln(out, "No job history (the server keeps history only with the SurrealDB store)")
		return nil
	}

	fmt.Fprintf(out, "%-16s %-10s %-8s %10s %-20s %s\n", "DATASET", "STATUS", "TRIGGER", "RECORDS", "STARTED", "DURATION")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------")
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(out, "%-16s %-10s %-8s %10d %-20s %s\n",
			run.DatasetID, run.Status, run.Trigger, run.Records, run.StartedAt.Local().Format("2006-01-02 15:04:05"), duration)
		if verbose && run.Error != nil {
			fmt.Fprintf(out, "  Error: %s\n", *run.Error)
		}
	}
	return nil
}

func showJob(cmd *cobra.Command, id string) error {
	job, err := apiClient.GetJob(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	printJob(cmd.OutOrStdout(), *job)
	return nil
}

func printJob(out io.Writer, job service.JobSnapshot) {
	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "  Dataset: %s (%s)\n", job.DatasetID, job.Source)
	fmt.Fprintf(out, "  Trigger: %s\n", job.Trigger)
	fmt.Fprintf(out, "  Status: %s\n", job.Status)
	fmt.Fprintf(out, "  Records: %d in %d batches\n", job.Records, job.Batches)
	if job.Deleted > 0 {
		fmt.Fprintf(out, "  Replaced: %d records\n", job.Deleted)
	}
	if job.BytesTotal > 0 {
		fmt.Fprintf(out, "  Read: %s / %s\n", formatBytes(job.BytesRead), formatBytes(job.BytesTotal))
	} else if job.BytesRead > 0 {
		fmt.Fprintf(out, "  Read: %s\n", formatBytes(job.BytesRead))
	}
	fmt.Fprintf(out, "  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "  Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", job.Error)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
