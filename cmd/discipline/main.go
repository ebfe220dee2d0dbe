// Package main is the CLI entry point for discipline.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/discipline/internal/config"
	"github.com/eliteGoblin/focusd/discipline/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "discipline",
	Short: "Discipline enforcer - punishes distracting app use",
	Long: `discipline watches which application is in front, flags use of distracting
apps past a threshold or inside blackout windows, and imposes an escalating
punishment that can only be escaped by confession, camera guilt or waiting it out.

Streaks, scores and worst offenders are kept in an encrypted local ledger,
optionally shared with an accountability partner.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	dataDir    string
	configPath string
	userMode   bool
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.discipline, or /var/lib/discipline as root)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default: <data-dir>/settings.yaml)")
	rootCmd.PersistentFlags().BoolVar(&userMode, "user", false, "Use the invoking user's data directory even as root")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(zonesCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolvePaths applies --data-dir and --user over the detected layout.
func resolvePaths() infra.DataPaths {
	var p infra.DataPaths
	switch {
	case dataDir != "":
		p = infra.DataPathsFor(infra.ExecModeUser, dataDir)
	case userMode:
		p = infra.UserDataPaths()
	default:
		p = infra.DetectDataPaths()
	}
	if configPath != "" {
		p.Settings = configPath
	}
	return p
}

// loadSettings reads settings.yaml and .env from the data dir.
func loadSettings(p infra.DataPaths) (config.Settings, error) {
	return config.Load(p.Settings, p.EnvFile)
}

// createLogger builds the daemon logger writing to the data dir.
func createLogger(p infra.DataPaths) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{p.Log}
	cfg.ErrorOutputPaths = []string{p.Log, "stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		out, _ := json.Marshal(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		fmt.Println(string(out))
		return
	}
	fmt.Printf("discipline %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
}
