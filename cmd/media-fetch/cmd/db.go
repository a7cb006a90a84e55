package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-fetch/internal/helpers"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and maintain the download ledger",
}

var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "List recorded downloads",
	RunE:  runDbView,
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check recorded downloads against the files on disk",
	Long: `Checks that every recorded file still exists and, with --check-hash, that its BLAKE3
checksum matches the ledger. --prune drops entries whose file is missing.`,
	RunE: runDbVerify,
}

var dbDeleteCmd = &cobra.Command{
	Use:   "delete FILENAME",
	Short: "Remove a ledger entry, and optionally the file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDbDelete,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd, dbVerifyCmd, dbDeleteCmd)

	dbVerifyCmd.Flags().Bool("check-hash", true, "Verify BLAKE3 checksums of existing files")
	dbVerifyCmd.Flags().Bool("prune", false, "Forget entries whose file is missing")
	dbDeleteCmd.Flags().Bool("file", false, "Also delete the file from OutputDir")
}

func runDbView(cmd *cobra.Command, args []string) error {
	lib, closeLib, err := openLibrary(globalConfig, false)
	if err != nil {
		return err
	}
	defer closeLib()

	arts, err := lib.DB.ListArtifacts()
	if err != nil {
		return fmt.Errorf("error scanning database: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Filename\tTitle\tContainer\tFormat\tSize\tCreated\tTorrent")
	fmt.Fprintln(tw, "--------\t-----\t---------\t------\t----\t-------\t-------")
	for _, art := range arts {
		torrent := "-"
		if art.MagnetLink != "" {
			torrent = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			art.Filename, art.Title, art.Container, art.FormatID,
			helpers.BytesToSize(uint64(art.Size)), art.CreatedAt.Format(time.DateTime), torrent)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db view")
	}
	log.Infof("Displayed %d entries.", len(arts))
	return nil
}

func runDbVerify(cmd *cobra.Command, args []string) error {
	checkHash, _ := cmd.Flags().GetBool("check-hash")
	prune, _ := cmd.Flags().GetBool("prune")

	lib, closeLib, err := openLibrary(globalConfig, prune)
	if err != nil {
		return err
	}
	defer closeLib()

	arts, err := lib.DB.ListArtifacts()
	if err != nil {
		return fmt.Errorf("error scanning database: %w", err)
	}

	var ok, missing, mismatched, pruned int
	for _, art := range arts {
		path := lib.Path(art.Filename)
		logger := log.WithField("file", art.Filename)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			missing++
			logger.Warn("File missing")
			if prune {
				if err := lib.Forget(art.Filename); err != nil {
					logger.WithError(err).Error("Failed to prune entry")
				} else {
					pruned++
				}
			}
			continue
		}
		if checkHash && art.BLAKE3 != "" && !helpers.CheckBLAKE3(path, art.BLAKE3) {
			mismatched++
			logger.Warn("Checksum mismatch")
			continue
		}
		ok++
	}

	log.Infof("Verify complete. OK: %d, Missing: %d, Mismatched: %d, Pruned: %d", ok, missing, mismatched, pruned)
	if mismatched > 0 || (missing > pruned) {
		return fmt.Errorf("%d problem(s) found", mismatched+missing-pruned)
	}
	return nil
}

func runDbDelete(cmd *cobra.Command, args []string) error {
	deleteFile, _ := cmd.Flags().GetBool("file")
	lib, closeLib, err := openLibrary(globalConfig, true)
	if err != nil {
		return err
	}
	defer closeLib()

	name := args[0]
	if _, found := lib.Lookup(name); !found {
		log.Warnf("%s is not in the ledger", name)
	}
	if err := lib.Forget(name); err != nil {
		return err
	}
	if deleteFile {
		if err := os.Remove(lib.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	log.Infof("Removed %s", name)
	return nil
}
