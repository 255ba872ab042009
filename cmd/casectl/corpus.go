package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docassist/docassist/internal/app"
	"github.com/docassist/docassist/internal/service"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import visits from a data source",
	Long:  "Import visits through the normal visit write path. Visits already imported from the same source are skipped.",
	RunE:  runSeed,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed visits that have no embedding",
	Long:  "Embed visits whose embedding is absent, pending or failed, oldest first.",
	RunE:  runBackfill,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the embedded corpus as JSON lines",
	Long:  "Write every visit embedded with the configured model to a local file, or upload it to object storage.\nWith --fetch, print a previous upload instead.",
	RunE:  runExport,
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Find cases similar to a free-text description",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var (
	seedSource    string
	seedPath      string
	seedLimit     int
	backfillLimit int
	exportOut     string
	exportFetch   string
	askTopK       int
	askJSON       bool
)

func init() {
	rootCmd.AddCommand(seedCmd, backfillCmd, exportCmd, askCmd)

	seedCmd.Flags().StringVar(&seedSource, "source", "samples", "Data source: samples or jsonfile")
	seedCmd.Flags().StringVar(&seedPath, "path", "", "JSON-lines file for --source jsonfile")
	seedCmd.Flags().IntVar(&seedLimit, "limit", 0, "Maximum number of visits (0 = all)")

	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "Maximum number of visits (0 = all)")

	exportCmd.Flags().StringVar(&exportOut, "out", "", "Write to this file instead of object storage (- for stdout)")
	exportCmd.Flags().StringVar(&exportFetch, "fetch", "", "Print the stored export with this object key")

	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "Maximum number of cases (0 = configured default)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the full response as JSON")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedSource == "jsonfile" && seedPath == "" {
		return fmt.Errorf("--path is required for --source jsonfile")
	}

	sources := app.Sources(seedPath)
	var key string
	for id := range sources {
		if id == seedSource || strings.HasPrefix(id, seedSource+":") {
			key = id
			break
		}
	}
	src, ok := sources[key]
	if !ok {
		return fmt.Errorf("unknown source %q", seedSource)
	}

	// Seeded visits are embedded inline so the command ends with a usable corpus.
	stats, err := globalApp.Ingest.IngestFromSource(cmd.Context(), src, seedLimit)
	if err != nil {
		return err
	}
	globalApp.Worker.Start(cmd.Context())
	if err := globalApp.Worker.Stop(cmd.Context()); err != nil {
		return err
	}
	printStats(cmd, "Seeded", stats)
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	if err := globalApp.Provider.Initialize(cmd.Context()); err != nil {
		return fmt.Errorf("embedding provider unavailable: %w", err)
	}
	stats, err := globalApp.Ingest.Backfill(cmd.Context(), backfillLimit)
	if err != nil {
		return err
	}
	printStats(cmd, "Backfilled", stats)
	return nil
}

func printStats(cmd *cobra.Command, verb string, stats *service.IngestStats) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: total=%d processed=%d skipped=%d failed=%d (job %s, %s)\n",
		verb, stats.TotalItems, stats.ProcessedItems, stats.SkippedItems, stats.FailedItems,
		stats.JobID, stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond))
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFetch != "" {
		_, err := globalApp.Export.ReadExport(cmd.Context(), exportFetch, cmd.OutOrStdout())
		return err
	}

	model := globalApp.Provider.Model()
	dim := globalApp.Provider.Dimension()

	if exportOut == "" {
		result, err := globalApp.Export.ExportCorpus(cmd.Context(), model, dim)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d visits (%d bytes) to %s\n", result.Records, result.Bytes, result.Location)
		return nil
	}

	out := cmd.OutOrStdout()
	if exportOut != "-" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer f.Close()
		out = f
	}
	n, err := globalApp.Export.WriteCorpus(cmd.Context(), out, model, dim)
	if err != nil {
		return err
	}
	if exportOut != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d visits to %s\n", n, exportOut)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := &service.ChatQuery{Message: strings.Join(args, " ")}
	resp := globalApp.QueryService.AnswerQuery(cmd.Context(), query, askTopK)

	if askJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprint(cmd.OutOrStdout(), resp.Response)
	if len(resp.SimilarCases) > 0 {
		ids := make([]string, 0, len(resp.SimilarCases))
		for _, c := range resp.SimilarCases {
			ids = append(ids, c.VisitID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Visits: %s\n", strings.Join(ids, ", "))
	}
	return nil
}
