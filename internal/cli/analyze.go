package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/plan-tiler/internal/imaging"
	"github.com/ironsheep/plan-tiler/internal/inference"
	"github.com/ironsheep/plan-tiler/internal/ocr"
	"github.com/ironsheep/plan-tiler/internal/pipeline"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

var (
	analyzeOutput string
	analyzeNoOCR  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Run the full tiled analysis on a plan",
	Long: `Run the full tiled analysis on a plan and print the result as JSON.

Tiles are sent to the configured inference provider in bounded batches.
Interrupting the command stops new batches; tiles already in flight finish
and their results are kept.

Examples:
  plan-tiler analyze ground-floor.tif --dpi 300
  plan-tiler analyze plan.png --provider openai --model gpt-4o
  plan-tiler analyze plan.png --config site.yaml --output result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write the result to this file instead of stdout")
	analyzeCmd.Flags().BoolVar(&analyzeNoOCR, "no-ocr", false, "skip OCR-based scale calibration")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, err := imaging.Open(args[0])
	if err != nil {
		return err
	}

	detector, closeDetector, err := inference.New(ctx, cfg.Inference, logger, nil)
	if err != nil {
		return fmt.Errorf("init inference: %w", err)
	}
	defer func() {
		if err := closeDetector(); err != nil {
			logger.Warn("failed to close inference client", "error", err)
		}
	}()

	var reader ocr.Reader
	if !analyzeNoOCR {
		reader = ocr.NewTesseract(cfg.Calibration.OCRLanguage)
	}

	analyzer, err := pipeline.New(cfg, detector, reader, logger)
	if err != nil {
		return err
	}
	res, err := analyzer.Run(ctx, plan.NewImage(src, cfg.Image.Resolution))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if analyzeOutput != "" {
		f, err := os.Create(analyzeOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writeJSON(out, res)
}
