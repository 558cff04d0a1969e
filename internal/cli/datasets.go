package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/warydiaz/json-ingestion-platform/internal/metrics"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List configured datasets",
	Long: `List the datasets the server ingests.

Subcommands:
  reload  Re-read the server's datasets file

Examples:
  ingestctl datasets
  ingestctl datasets reload`,
	RunE: runDatasets,
}

var datasetsReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-read the server's datasets file",
	RunE:  runDatasetsReload,
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Queue an ingestion job for every dataset",
	RunE:  runTrigger,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server operation metrics",
	RunE:  runStats,
}

func init() {
	datasetsCmd.AddCommand(datasetsReloadCmd)
}

func runDatasets(cmd *cobra.Command, args []string) error {
	datasets, err := apiClient.ListDatasets(cmd.Context())
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}
	printDatasets(cmd.OutOrStdout(), datasets)
	return nil
}

func runDatasetsReload(cmd *cobra.Command, args []string) error {
	datasets, err := apiClient.ReloadDatasets(cmd.Context())
	if err != nil {
		return fmt.Errorf("reload datasets: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Reloaded.")
	printDatasets(cmd.OutOrStdout(), datasets)
	return nil
}

func printDatasets(out io.Writer, datasets []models.DatasetDescriptor) {
	if len(datasets) == 0 {
		fmt.Fprintln(out, "No datasets configured.")
		return
	}

	fmt.Fprintf(out, "Datasets (%d):\n\n", len(datasets))
	for _, d := range datasets {
		location := d.URL
		if d.SourceType == models.SourceTypeS3 {
			location = fmt.Sprintf("s3://%s/%s", d.Bucket, d.Key)
		}
		fmt.Fprintf(out, "- %s [%s] %s\n", d.DatasetID, d.SourceType, location)
		if verbose {
			if d.Source != "" {
				fmt.Fprintf(out, "  Source: %s\n", d.Source)
			}
			if d.Description != "" {
				fmt.Fprintf(out, "  %s\n", d.Description)
			}
			if len(d.FieldMapping) > 0 {
				fmt.Fprintf(out, "  Fields: %d mapped\n", len(d.FieldMapping))
			}
		}
	}
}

func runTrigger(cmd *cobra.Command, args []string) error {
	res, err := apiClient.TriggerIngestion(cmd.Context())
	if err != nil {
		return fmt.Errorf("trigger ingestion: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d jobs)\n", res.Message, res.Published)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	snap, err := apiClient.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Uptime: %.0fs\n\n", snap.UptimeSeconds)
	fmt.Fprintf(out, "%-16s %8s %8s %10s %10s\n", "OPERATION", "COUNT", "ERRORS", "AVG MS", "MAX MS")
	for _, op := range []struct {
		name string
		snap *metrics.OperationSnapshot
	}{
		{metrics.OpIngestRun, snap.IngestRun},
		{metrics.OpInsertBatch, snap.InsertBatch},
		{metrics.OpDeleteDataset, snap.DeleteDataset},
		{metrics.OpReadPage, snap.ReadPage},
	} {
		if op.snap == nil {
			continue
		}
		fmt.Fprintf(out, "%-16s %8d %8d %10.1f %10d\n", op.name, op.snap.Count, op.snap.Errors, op.snap.AvgTimeMs, op.snap.MaxTimeMs)
	}
	return nil
}
