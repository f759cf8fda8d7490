package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ironsheep/plan-tiler/internal/tiling"
)

var gridCmd = &cobra.Command{
	Use:   "grid <width> <height>",
	Short: "Print the tile grid for an image size",
	Long: `Print the tile grid planned for an image of the given pixel size.

Examples:
  plan-tiler grid 3508 2480
  PLAN_TILE_SIZE=1024 plan-tiler grid 9933 7016`,
	Args: cobra.ExactArgs(2),
	RunE: runGrid,
}

func runGrid(cmd *cobra.Command, args []string) error {
	width, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("width: %w", err)
	}
	height, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("height: %w", err)
	}

	grid, err := tiling.Plan(width, height, cfg.Tiling)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), grid)
}
