package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-media-fetch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serves the metadata, download (server-sent events), serve-file and search endpoints.
Completed files are recorded in the ledger and search index and expired after RetentionHours.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("listen", "", "Listen address, e.g. :3001 (overrides config)")
	f.Bool("detach", false, "Let downloads finish when the client disconnects")
	f.Bool("log-requests", false, "Dump incoming requests to RequestLogPath")
	f.Int("retention-hours", 0, "Remove downloads older than this many hours; negative disables")
	f.StringSlice("allowed-origins", nil, "CORS origins (default: any)")

	for _, name := range []string{"listen", "detach", "log-requests", "retention-hours", "allowed-origins"} {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	if !log.IsLevelEnabled(log.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lib, closeLib, err := openLibrary(cfg, true)
	if err != nil {
		return err
	}
	defer closeLib()

	var dumper *server.RequestDumper
	if cfg.LogRequests {
		dumper, err = server.NewRequestDumper(cfg.RequestLogPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := dumper.Close(); err != nil {
				log.WithError(err).Error("Error closing request log")
			}
		}()
		log.Infof("Dumping requests to %s", cfg.RequestLogPath)
	}

	sweeper, err := newSweeper(cfg, lib, false)
	switch {
	case errors.Is(err, errRetentionDisabled):
		log.Info("Retention disabled, downloads are kept indefinitely")
	case err != nil:
		return err
	default:
		if rep, err := sweeper.Sweep(); err != nil {
			log.WithError(err).Warn("Initial retention sweep failed")
		} else {
			log.Infof("Initial retention sweep: %s", rep)
		}
		go sweeper.Run(ctx, time.Duration(cfg.SweepIntervalMinutes)*time.Minute)
	}

	log.WithFields(log.Fields{
		"output_dir": cfg.OutputDir,
		"detach":     cfg.DetachOnDisconnect,
		"retention":  cfg.RetentionHours,
	}).Info("Starting media-fetch server")
	srv := server.New(newOrchestrator(cfg, lib), lib, cfg, dumper)
	return srv.ListenAndServe(ctx)
}
