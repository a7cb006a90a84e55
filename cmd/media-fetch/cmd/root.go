package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-media-fetch/internal/api"
	"go-media-fetch/internal/config"
	"go-media-fetch/internal/models"
)

// EnvPrefix is prepended to environment overrides, e.g. MEDIAFETCH_LISTEN.
const EnvPrefix = "MEDIAFETCH"

var (
	cfgFile   string
	logLevel  string
	logFormat string
	logAPI    bool
)

// globalConfig holds the loaded configuration after flag and env overrides.
var globalConfig models.Config

// globalHttpTransport is the transport used for calls to a remote server,
// wrapped for logging when --log-api is set.
var globalHttpTransport http.RoundTripper = http.DefaultTransport

var rootCmd = &cobra.Command{
	Use:   "media-fetch",
	Short: "Fetch media from video sites through yt-dlp",
	Long: `media-fetch inspects media URLs, offers the available containers and qualities,
and downloads the chosen one through yt-dlp, either directly or through a running server.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() {
	defer func() {
		if lt, ok := globalHttpTransport.(*api.LoggingTransport); ok {
			if err := lt.Close(); err != nil {
				log.WithError(err).Error("Error closing API log file")
			}
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (default \"config.toml\" when present)")
	pf.StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	pf.BoolVar(&logAPI, "log-api", false, "Log requests to a remote server into api.log")
	pf.String("output-dir", "", "Directory downloads are written to (overrides config)")
	pf.String("yt-dlp", "", "Path to the yt-dlp executable (overrides config)")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("output-dir", pf.Lookup("output-dir"))
	_ = viper.BindPFlag("yt-dlp", pf.Lookup("yt-dlp"))
}

func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), logFormat)
}

// loadGlobalConfig reads the config file, then applies environment and flag
// overrides through viper.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	globalConfig = applyOverrides(cfg)
	if err := config.Validate(globalConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.WithFields(log.Fields{
		"output_dir": globalConfig.OutputDir,
		"yt_dlp":     globalConfig.YtDlpPath,
	}).Debug("Configuration loaded")

	if logAPI {
		lt, err := api.NewLoggingTransport(http.DefaultTransport, "api.log")
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			log.Info("API logging to file: api.log")
			globalHttpTransport = lt
		}
	}
	return nil
}

// applyOverrides copies every viper key that was set by a flag or an
// environment variable onto cfg.
func applyOverrides(cfg models.Config) models.Config {
	if viper.IsSet("output-dir") {
		if v := viper.GetString("output-dir"); v != "" {
			cfg.OutputDir = v
		}
	}
	if viper.IsSet("yt-dlp") {
		if v := viper.GetString("yt-dlp"); v != "" {
			cfg.YtDlpPath = v
		}
	}
	if viper.IsSet("listen") {
		if v := viper.GetString("listen"); v != "" {
			cfg.Listen = v
		}
	}
	if viper.IsSet("detach") {
		cfg.DetachOnDisconnect = viper.GetBool("detach")
	}
	if viper.IsSet("log-requests") {
		cfg.LogRequests = viper.GetBool("log-requests")
	}
	if viper.IsSet("retention-hours") {
		cfg.RetentionHours = viper.GetInt("retention-hours")
	}
	if viper.IsSet("allowed-origins") {
		if v := viper.GetStringSlice("allowed-origins"); len(v) > 0 {
			cfg.AllowedOrigins = v
		}
	}
	return cfg
}
