package cmd

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-fetch/internal/library"
)

var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate .torrent files and magnet links for downloaded files",
	Long: `Generates single-file BitTorrent metainfo for files recorded in the ledger and stores
the magnet link with the entry. You must specify at least one tracker announce URL.`,
	RunE: runTorrent,
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	f := torrentCmd.Flags()
	f.StringSlice("announce", nil, "Tracker announce URL (repeatable)")
	f.StringSlice("file", nil, "Only these recorded filenames (default: all)")
	f.StringP("torrent-dir", "o", "", "Directory for .torrent files (default: next to the download)")
	f.BoolP("overwrite", "f", false, "Regenerate existing .torrent files")
	f.IntP("concurrency", "c", 4, "Number of concurrent torrent workers")
}

func torrentWorker(id int, lib *library.Library, jobs <-chan string, opts library.TorrentOptions, wg *sync.WaitGroup, success, failure *atomic.Int64) {
	defer wg.Done()
	for name := range jobs {
		art, err := lib.MakeTorrent(name, opts)
		if err != nil {
			log.WithError(err).Errorf("Worker %d: Failed to generate torrent for %s", id, name)
			failure.Add(1)
			continue
		}
		log.WithField("magnet", art.MagnetLink).Infof("Worker %d: Generated torrent for %s", id, name)
		success.Add(1)
	}
}

func runTorrent(cmd *cobra.Command, args []string) error {
	announce, _ := cmd.Flags().GetStringSlice("announce")
	files, _ := cmd.Flags().GetStringSlice("file")
	outDir, _ := cmd.Flags().GetString("torrent-dir")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	if len(announce) == 0 {
		return errors.New("at least one --announce URL is required")
	}
	if concurrency <= 0 {
		log.Warnf("Invalid concurrency value %d, defaulting to 4", concurrency)
		concurrency = 4
	}

	lib, closeLib, err := openLibrary(globalConfig, true)
	if err != nil {
		return err
	}
	defer closeLib()

	if len(files) == 0 {
		arts, err := lib.DB.ListArtifacts()
		if err != nil {
			return fmt.Errorf("error scanning database: %w", err)
		}
		for _, art := range arts {
			files = append(files, art.Filename)
		}
	}
	if len(files) == 0 {
		log.Info("No recorded downloads found.")
		return nil
	}

	opts := library.TorrentOptions{Trackers: announce, OutputDir: outDir, Overwrite: overwrite}
	jobs := make(chan string, concurrency)
	var wg sync.WaitGroup
	var success, failure atomic.Int64
	for i := 1; i <= concurrency; i++ {
		wg.Add(1)
		go torrentWorker(i, lib, jobs, opts, &wg, &success, &failure)
	}
	for _, name := range files {
		jobs <- name
	}
	close(jobs)
	wg.Wait()

	log.Infof("Torrent generation complete. Success: %d, Failed: %d", success.Load(), failure.Load())
	if n := failure.Load(); n > 0 {
		return fmt.Errorf("%d torrents failed to generate", n)
	}
	return nil
}
