// Package cli provides the command-line interface for the ingestion API.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/warydiaz/json-ingestion-platform/internal/client"
	"github.com/warydiaz/json-ingestion-platform/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string
	apiKey    string

	// Global config and API client
	cfg       config.Config
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ingestctl",
	Short: "Query records and drive dataset ingestion",
	Long: `ingestctl talks to the ingestion API: it reads records with filters and
cursor pagination, lists configured datasets, and starts or inspects
ingestion jobs.

Connection settings come from --url/--api-key or the INGEST_URL and
INGEST_API_KEY environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()

		url := serverURL
		if url == "" {
			url = cfg.ServerURL
		}
		key := apiKey
		if key == "" {
			key = cfg.APIKey
		}
		apiClient = client.New(url, key)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "API base URL (default $INGEST_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (default $INGEST_API_KEY)")

	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
}
