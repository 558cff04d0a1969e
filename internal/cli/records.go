package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/warydiaz/json-ingestion-platform/internal/client"
	"github.com/warydiaz/json-ingestion-platform/internal/pagination"
)

var (
	recordsFilters []string
	recordsLimit   int
	recordsCursor  string
	recordsAll     bool
	recordsJSON    bool
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Query ingested records",
	Long: `Query ingested records with attribute filters and cursor pagination.

Filters are key=value pairs. Keys are dotted payload paths; the suffixes
_min, _max, _gt and _lt select numeric ranges. "source" and "datasetId"
match the record's identity fields exactly.

Examples:
  ingestctl records --filter datasetId=hotels
  ingestctl records --filter city=lyon --filter stars_min=4 --limit 50
  ingestctl records --filter datasetId=hotels --all --json`,
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().StringArrayVarP(&recordsFilters, "filter", "f", nil, "filter as key=value (repeatable)")
	recordsCmd.Flags().IntVarP(&recordsLimit, "limit", "n", 0, "page size, 1-100 (server default 10)")
	recordsCmd.Flags().StringVar(&recordsCursor, "cursor", "", "continue after this cursor")
	recordsCmd.Flags().BoolVar(&recordsAll, "all", false, "follow cursors until the last page")
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "print records as JSON lines")
}

// parseFilters turns key=value flags into query filters. Values may contain
// '='; the first one separates the key.
func parseFilters(raw []string) (map[string]string, error) {
	filters := make(map[string]string, len(raw))
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", f)
		}
		filters[strings.TrimSpace(key)] = value
	}
	return filters, nil
}

func runRecords(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(recordsFilters)
	if err != nil {
		return err
	}
	opts := client.RecordsOptions{Filters: filters, Limit: recordsLimit, Cursor: recordsCursor}
	out := cmd.OutOrStdout()

	if !recordsAll {
		page, err := apiClient.Records(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("query records: %w", err)
		}
		if err := printPage(out, page); err != nil {
			return err
		}
		if !recordsJSON {
			printPageFooter(out, page)
		}
		return nil
	}

	var count int
	err = apiClient.AllRecords(cmd.Context(), opts, func(page *pagination.Page) error {
		count += len(page.Data)
		return printPage(out, page)
	})
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	if !recordsJSON {
		fmt.Fprintf(out, "\n%d records\n", count)
	}
	return nil
}

func printPage(out io.Writer, page *pagination.Page) error {
	for _, r := range page.Data {
		if recordsJSON {
			line, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			fmt.Fprintln(out, string(line))
			continue
		}

		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		fmt.Fprintf(out, "- %s [%s/%s]\n", r.ID, r.Source, r.DatasetID)
		fmt.Fprintf(out, "  %s\n", truncate(string(payload), 200))
		if verbose {
			fmt.Fprintf(out, "  Ingested: %s\n", r.IngestionDate.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func printPageFooter(out io.Writer, page *pagination.Page) {
	fmt.Fprintf(out, "\nShowing %d of %d records", len(page.Data), page.Pagination.Total)
	if page.Pagination.HasMore && page.Pagination.NextCursor != nil {
		fmt.Fprintf(out, " (next: --cursor %s)", *page.Pagination.NextCursor)
	}
	fmt.Fprintln(out)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
