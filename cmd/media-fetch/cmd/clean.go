package cmd

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-fetch/internal/helpers"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove expired downloads and abandoned job directories",
	Long: `Runs one retention sweep: files in OutputDir older than RetentionHours are removed,
stale yt-dlp job directories are deleted, and ledger entries whose file is gone are pruned.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().Bool("dry-run", false, "Only report what would be removed")
	cleanCmd.Flags().Int("older-than", 0, "Override RetentionHours for this run")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if cmd.Flags().Changed("older-than") {
		hours, _ := cmd.Flags().GetInt("older-than")
		if hours <= 0 {
			return fmt.Errorf("--older-than must be positive, got %d", hours)
		}
		cfg.RetentionHours = hours
	}

	lib, closeLib, err := openLibrary(cfg, true)
	if err != nil {
		log.WithError(err).Warn("Ledger unavailable, only files will be swept")
		lib = nil
	} else {
		defer closeLib()
	}

	sweeper, err := newSweeper(cfg, lib, dryRun)
	if errors.Is(err, errRetentionDisabled) {
		log.Info("Retention is disabled; pass --older-than to sweep anyway")
		return nil
	}
	if err != nil {
		return err
	}

	rep, err := sweeper.Sweep()
	if err != nil {
		return err
	}
	prefix := "Clean complete"
	if dryRun {
		prefix = "Dry run"
	}
	log.Infof("%s: %s, %s freed", prefix, rep, helpers.BytesToSize(uint64(rep.BytesFreed)))
	if rep.Failed > 0 {
		return fmt.Errorf("%d item(s) could not be removed", rep.Failed)
	}
	return nil
}
