package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-fetch/index"
	"go-media-fetch/internal/api"
)

var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search downloaded files",
	Long: `Searches the Bleve index of completed downloads. The query uses Bleve query-string
syntax, e.g. 'title:trailer +type:audio'. Without a query every indexed file is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("limit", "n", 20, "Maximum number of results")
	searchCmd.Flags().String("server", "", "Search a running media-fetch server instead of the local index")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	limit, _ := cmd.Flags().GetInt("limit")
	serverURL, _ := cmd.Flags().GetString("server")
	out := cmd.OutOrStdout()

	if serverURL != "" {
		hits, total, err := api.NewClient(serverURL, remoteHTTPClient()).Files(cmd.Context(), query, limit)
		if err != nil {
			return err
		}
		for i, hit := range hits {
			fmt.Fprintf(out, "[%d] %s (Score: %.2f)\n  title: %s\n  url: %s\n", i+1, hit.Filename, hit.Score, hit.Title, hit.DownloadURL)
		}
		fmt.Fprintf(out, "%d of %d result(s)\n", len(hits), total)
		return nil
	}

	indexPath := globalConfig.BleveIndexPath
	// Open, not OpenOrCreate: searching must not create an empty index.
	bleveIndex, err := bleve.Open(indexPath)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			return fmt.Errorf("no search index at %s; download something first", indexPath)
		}
		return fmt.Errorf("failed to open Bleve index at %s: %w", indexPath, err)
	}
	defer func() {
		if err := bleveIndex.Close(); err != nil {
			log.WithError(err).Error("Error closing Bleve index")
		}
	}()

	results, err := index.SearchIndex(bleveIndex, query, limit)
	if err != nil {
		return fmt.Errorf("error performing search: %w", err)
	}
	log.Debugf("Search finished. Hits: %d, Total: %d, Took: %s", len(results.Hits), results.Total, results.Took)

	if results.Total == 0 {
		fmt.Fprintln(out, "No results found matching your query.")
		return nil
	}
	for i, hit := range results.Hits {
		fmt.Fprintf(out, "[%d] %s (Score: %.2f)\n", i+1, hit.ID, hit.Score)
		for _, field := range []string{"title", "type", "container", "host", "sourceUrl", "magnetLink"} {
			if v, ok := hit.Fields[field]; ok && strings.TrimSpace(fmt.Sprint(v)) != "" {
				fmt.Fprintf(out, "  %s: %v\n", field, v)
			}
		}
	}
	fmt.Fprintf(out, "%d of %d result(s)\n", len(results.Hits), results.Total)
	return nil
}
