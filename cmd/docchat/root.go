package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-docchat-backend/internal/config"
	"github.com/tbourn/go-docchat-backend/internal/sysutil"
)

// Version is set via ldflags at build time.
var Version = "dev"

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Documentation ingestion and chat backend",
	Long: `docchat ingests uploaded files and crawled web pages into a vector
store and answers questions about them over resumable chat streams.

Configuration is read from the environment, optionally seeded from .env files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

// loadConfig seeds the environment from dotenv files, loads the configuration
// and sets up the global logger from it.
func loadConfig() (config.Config, error) {
	if err := config.LoadDotenv(envFiles...); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	setupLogger(cfg)
	return cfg, nil
}

func setupLogger(cfg config.Config) {
	out := os.Stdout
	if cfg.LogPretty {
		out = os.Stderr
	}
	sysutil.SetupLogger(out, sysutil.LoggerOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("docchat %s\n", Version)
	},
}
