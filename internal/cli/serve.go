package cli

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/plan-tiler/internal/inference"
	"github.com/ironsheep/plan-tiler/internal/ocr"
	"github.com/ironsheep/plan-tiler/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdin/stdout",
	Long: `Run the MCP (Model Context Protocol) server on stdin/stdout.

Logs go to stderr and the optional log file; stdout carries the protocol.
If the inference provider cannot be initialised the server still starts and
every tool except plan_analyze works.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var detector inference.Detector
	d, closeDetector, err := inference.New(ctx, cfg.Inference, logger, nil)
	if err != nil {
		logger.Warn("inference unavailable, plan_analyze disabled", "provider", cfg.Inference.Provider, "error", err)
	} else {
		detector = d
		defer func() {
			if err := closeDetector(); err != nil {
				logger.Warn("failed to close inference client", "error", err)
			}
		}()
	}

	logger.Info("starting MCP server", "version", Version, "provider", cfg.Inference.Provider)
	srv := server.New(cfg, detector, ocr.NewTesseract(cfg.Calibration.OCRLanguage), logger)
	return srv.Run(ctx)
}
