package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-fetch/internal/api"
	"go-media-fetch/internal/catalog"
	"go-media-fetch/internal/downloader"
	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
)

var downloadCmd = &cobra.Command{
	Use:   "download URL",
	Short: "Download one media URL in the chosen container and quality",
	Long: `Downloads URL through yt-dlp into the output directory. The container defaults to the
configured MuxContainer and the format to the best available. With --server the job runs on a
media-fetch server and the finished file is fetched into --dest.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	f := downloadCmd.Flags()
	f.StringP("container", "c", "", "Output container, e.g. mp4, webm or the audio target mp3 (default: MuxContainer)")
	f.StringP("format", "f", catalog.BestFormatID, "Format ID from 'info', or 'best'")
	f.Bool("audio", false, "Shortcut for --container <AudioContainer>")
	f.String("server", "", "Run the job on a media-fetch server at this base URL")
	f.String("dest", "", "Where --server downloads are saved (default: OutputDir)")
	f.Bool("no-progress", false, "Do not render the live progress line")
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	container, _ := cmd.Flags().GetString("container")
	formatID, _ := cmd.Flags().GetString("format")
	audio, _ := cmd.Flags().GetBool("audio")
	serverURL, _ := cmd.Flags().GetString("server")
	dest, _ := cmd.Flags().GetString("dest")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	switch {
	case audio:
		container = cfg.AudioContainer
	case container == "":
		container = cfg.MuxContainer
	}
	container = strings.ToLower(strings.TrimPrefix(container, "."))
	if dest == "" {
		dest = cfg.OutputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var out io.Writer = cmd.OutOrStdout()
	var writer *uilive.Writer
	if !noProgress {
		writer = uilive.New()
		writer.Out = out
		writer.Start()
	}
	onProgress := func(ev models.ProgressEvent) {
		if writer != nil {
			fmt.Fprintln(writer, progressLine(ev))
		}
	}

	var (
		res       models.JobResult
		localPath string
		err       error
	)
	if serverURL != "" {
		res, localPath, err = downloadRemote(ctx, serverURL, args[0], formatID, container, dest, writer, onProgress)
	} else {
		res, localPath, err = downloadLocal(ctx, args[0], formatID, container, onProgress)
	}
	if writer != nil {
		writer.Stop()
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Error)
	}

	fmt.Fprintf(out, "Saved %s (%s)\n", localPath, helpers.BytesToSize(uint64(res.FileSize)))
	return nil
}

func downloadLocal(ctx context.Context, sourceURL, formatID, container string, onProgress func(models.ProgressEvent)) (models.JobResult, string, error) {
	cfg := globalConfig
	lib, closeLib, err := openLibrary(cfg, true)
	if err != nil {
		log.WithError(err).Warn("Ledger unavailable, the download will not be recorded")
		lib = nil
	} else {
		defer closeLib()
	}

	orch := newOrchestrator(cfg, lib)
	job, err := orch.NewJob(sourceURL, formatID, container)
	if err != nil {
		return models.JobResult{}, "", err
	}
	log.WithFields(log.Fields{"job": job.ID, "container": container, "format": formatID}).Info("Starting download")

	// The failure message is in the result; the error only adds the kind.
	res, _ := orch.Run(ctx, job, onProgress)
	if !res.Success {
		return res, "", nil
	}
	return res, filepath.Join(cfg.OutputDir, res.Filename), nil
}

func downloadRemote(ctx context.Context, serverURL, sourceURL, formatID, container, dest string, writer *uilive.Writer, onProgress func(models.ProgressEvent)) (models.JobResult, string, error) {
	client := api.NewClient(serverURL, remoteHTTPClient())
	res, err := client.Download(ctx, sourceURL, formatID, container, onProgress)
	if err != nil || !res.Success {
		return res, "", err
	}

	fileURL := client.Resolve(res.DownloadURL)
	log.Debugf("Fetching %s", fileURL)
	path, err := downloader.NewDownloader(remoteHTTPClient()).FetchFile(ctx, fileURL, dest, res.Filename, func(written, total uint64) {
		if writer == nil {
			return
		}
		if total > 0 {
			fmt.Fprintf(writer, "Fetching: %s / %s\n", helpers.BytesToSize(written), helpers.BytesToSize(total))
		} else {
			fmt.Fprintf(writer, "Fetching: %s\n", helpers.BytesToSize(written))
		}
	})
	if err != nil {
		return res, "", fmt.Errorf("job finished on the server but fetching the file failed: %w", err)
	}
	return res, path, nil
}

// progressLine renders one progress event for the live writer.
func progressLine(ev models.ProgressEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Downloading: %5.1f%%", ev.Percent)
	if ev.BytesPerSecond != nil && *ev.BytesPerSecond > 0 {
		fmt.Fprintf(&b, "  %s/s", helpers.BytesToSize(uint64(*ev.BytesPerSecond)))
	}
	if ev.ETASeconds != nil {
		fmt.Fprintf(&b, "  ETA %ds", *ev.ETASeconds)
	}
	return b.String()
}
