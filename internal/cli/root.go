// Package cli provides the command-line interface for plan-tiler.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/plan-tiler/internal/config"
)

var (
	// Version information, set by ldflags during build.
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// Global flags
	configPath string
	dpi        float64
	provider   string
	model      string
	logLevel   string
	logFile    string

	// Loaded by PersistentPreRunE
	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "plan-tiler",
	Short: "Tiled element detection and compliance checks for architectural plans",
	Long: `plan-tiler splits an oversized plan scan into overlapping tiles sized for a
vision model, detects building elements in every tile, merges the duplicates
found in overlaps, calibrates the drawing scale and reports regulatory
violations and quantities.

Configuration is layered: built-in defaults, then the --config YAML file,
then PLAN_* environment variables (a .env file is read first), then flags.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlags(cmd.Flags(), &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, closeLogger = config.SetupLogger(cfg.Log.File, cfg.Log.SlogLevel())
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			if err := closeLogger(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
			closeLogger = nil
		}
	},
}

// changedFlags is satisfied by *pflag.FlagSet.
type changedFlags interface {
	Changed(name string) bool
}

// applyFlags overrides configuration with flags the user set explicitly.
func applyFlags(flags changedFlags, c *config.Config) {
	if flags.Changed("dpi") {
		c.Image.Resolution = dpi
	}
	if flags.Changed("provider") {
		c.Inference.Provider = provider
	}
	if flags.Changed("model") {
		c.Inference.Model = model
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		c.Log.File = logFile
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().Float64Var(&dpi, "dpi", 0, "scan resolution in dots per inch")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "inference provider (gemini, vertex, vision, openai, anthropic, ollama, bedrock)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "inference model name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")

	// Add subcommands
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(gridCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// writeJSON pretty-prints v to w.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
