package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"go-media-fetch/internal/api"
	"go-media-fetch/internal/catalog"
	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
)

var infoCmd = &cobra.Command{
	Use:   "info URL",
	Short: "Show metadata and the available containers and qualities for a URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().String("server", "", "Ask a running media-fetch server instead of calling yt-dlp locally")
	infoCmd.Flags().Bool("json", false, "Print the raw metadata and menu as JSON")
	infoCmd.Flags().Bool("formats", false, "Also list every normalized format")
}

func runInfo(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server")
	asJSON, _ := cmd.Flags().GetBool("json")
	showFormats, _ := cmd.Flags().GetBool("formats")

	meta, menu, err := fetchInfo(cmd.Context(), serverURL, args[0])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"data": meta, "menu": menu})
	}
	printInfo(cmd.OutOrStdout(), meta, menu, showFormats)
	return nil
}

// fetchInfo extracts metadata locally, or through serverURL when set.
func fetchInfo(ctx context.Context, serverURL, sourceURL string) (models.VideoMetadata, models.Menu, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := globalConfig
	if serverURL != "" {
		resp, err := api.NewClient(serverURL, remoteHTTPClient()).VideoInfo(ctx, sourceURL)
		if err != nil {
			return models.VideoMetadata{}, models.Menu{}, err
		}
		return resp.Data, resp.Menu, nil
	}

	orch := newOrchestrator(cfg, nil)
	meta, err := orch.Inspect(ctx, sourceURL, time.Duration(cfg.ExtractTimeoutSec)*time.Second)
	if err != nil {
		return models.VideoMetadata{}, models.Menu{}, err
	}
	return meta, catalog.BuildMenu(meta.Formats, cfg.AudioContainer), nil
}

func printInfo(w io.Writer, meta models.VideoMetadata, menu models.Menu, showFormats bool) {
	fmt.Fprintf(w, "Title:    %s\n", meta.Title)
	if meta.Uploader != "" {
		fmt.Fprintf(w, "Uploader: %s\n", meta.Uploader)
	}
	if meta.Duration > 0 {
		fmt.Fprintf(w, "Duration: %s\n", (time.Duration(meta.Duration) * time.Second).String())
	}
	if meta.UploadDate != "" {
		fmt.Fprintf(w, "Uploaded: %s\n", meta.UploadDate)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Container\tFormat ID\tQuality")
	fmt.Fprintln(tw, "---------\t---------\t-------")
	for _, c := range menu.Containers {
		for _, q := range menu.Qualities[c] {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c, q.FormatID, q.Label)
		}
	}
	_ = tw.Flush()

	if !showFormats {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tExt\tResolution\tVideo\tAudio\tSize\tNote")
	for _, f := range meta.Formats {
		size := "-"
		if f.FileSize != nil {
			size = helpers.BytesToSize(uint64(*f.FileSize))
			if f.FileSizeEstimated {
				size += " (est.)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", f.FormatID, f.Ext, f.Resolution, f.VideoCodec, f.AudioCodec, size, f.FormatNote)
	}
	_ = tw.Flush()
}
