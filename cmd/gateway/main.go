// Command gateway serves a storage backend over gRPC.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/objectfs/gateway/internal/config"
	"github.com/objectfs/gateway/pkg/utils"
)

// Set at link time:
//
//	go build -ldflags "-X main.BuildHash=$(git rev-parse HEAD) -X main.BuildTime=$(date -u +%FT%TZ)"
var (
	BuildHash = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "gateway",
	Short:         "Storage gateway",
	Long:          `Serves a local directory or an S3 bucket through a gRPC file API with an optional Redis cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")

	rootCmd.AddCommand(serveCmd, versionCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig applies the command line on top of the file and environment
func loadConfig() (*config.Configuration, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		if _, err := utils.ParseLogLevel(logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Configuration) (*zap.Logger, error) {
	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.With(zap.String("instance", cfg.Info.InstanceID)), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		version := config.NewDefault().Server.Version
		if v := os.Getenv("VERSION"); v != "" {
			version = v
		}
		fmt.Fprintf(cmd.OutOrStdout(), "gateway %s (build %s, %s)\n", version, BuildHash, BuildTime)
		return nil
	},
}
