// Package dispatch sends tiles to the inference collaborator in bounded
// batches and gathers their detections.
//
// # Batching
//
// Tiles are issued in batches of MaxConcurrentTiles. Every tile of a batch
// runs concurrently and the batch is a barrier: the next batch starts only
// after every call of the current one has returned. There is no pipelining
// across batches.
//
// # Failure isolation
//
// A tile whose crop, encode or inference call fails (including timeouts and
// malformed answers) contributes zero detections and one TileError wrapping
// plan.ErrTileInferenceFailure. Nothing is retried here.
//
// # Cancellation
//
// Cancelling the run context stops new batches from being issued. Calls
// already in flight keep running, bounded only by TileTimeout, so a
// cancelled run still returns every result the inference service produced.
// Tiles that were never issued are recorded with plan.ErrTileCancelled.
//
// Each tile writes to its own pre-allocated slot, so gathering needs no
// locking.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/imaging"
	"github.com/ironsheep/plan-tiler/internal/inference"
	"github.com/ironsheep/plan-tiler/internal/metrics"
	"github.com/ironsheep/plan-tiler/internal/plan"
	"github.com/ironsheep/plan-tiler/internal/tiling"
)

// Result is the gathered output of one dispatch.
type Result struct {
	// Detections holds one list per tile, indexed by tile id. A failed,
	// skipped or cancelled tile has an empty list.
	Detections [][]plan.RawDetection `json:"-"`

	// Errors lists tiles that contributed nothing because of a failure or
	// cancellation, in tile order.
	Errors []plan.TileError `json:"errors,omitempty"`

	Dispatched int `json:"dispatched"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// Count returns the total number of gathered detections.
func (r *Result) Count() int {
	n := 0
	for _, ds := range r.Detections {
		n += len(ds)
	}
	return n
}

// Dispatcher fans tiles out to a Detector.
type Dispatcher struct {
	cfg          config.Dispatch
	detector     inference.Detector
	elementTypes []string
	logger       *slog.Logger
	metrics      *metrics.Collector
}

// New returns a Dispatcher. A nil logger uses slog.Default(); a nil collector
// disables metrics.
func New(cfg config.Dispatch, detector inference.Detector, elementTypes []string, logger *slog.Logger, m *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:          cfg,
		detector:     detector,
		elementTypes: elementTypes,
		logger:       logger,
		metrics:      m,
	}
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeCancelled
)

// Run dispatches every tile of grid. It returns an error only for unusable
// input; tile failures are reported in the Result.
func (d *Dispatcher) Run(ctx context.Context, img plan.Image, grid *tiling.Grid) (*Result, error) {
	if d.detector == nil {
		return nil, fmt.Errorf("%w: no inference detector configured", plan.ErrInvalidConfiguration)
	}
	if grid == nil || img.Pixels == nil {
		return nil, fmt.Errorf("%w: dispatch needs an image and a tile grid", plan.ErrInvalidConfiguration)
	}
	batch := d.cfg.MaxConcurrentTiles
	if batch <= 0 {
		return nil, fmt.Errorf("%w: max concurrent tiles %d must be positive", plan.ErrInvalidConfiguration, batch)
	}

	n := len(grid.Tiles)
	slots := make([][]plan.RawDetection, n)
	errs := make([]error, n)
	outcomes := make([]outcome, n)

	for start := 0; start < n; start += batch {
		end := min(start+batch, n)

		if err := ctx.Err(); err != nil {
			for i := start; i < n; i++ {
				errs[i] = fmt.Errorf("%w: %v", plan.ErrTileCancelled, err)
				outcomes[i] = outcomeCancelled
			}
			d.logger.Warn("run cancelled, remaining tiles not dispatched",
				"first_tile", start, "remaining", n-start)
			break
		}

		// In-flight calls are detached from run cancellation. A failed tile
		// does not stop its siblings; Wait reports the first failure.
		batchCtx := context.WithoutCancel(ctx)
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				slots[i], outcomes[i], errs[i] = d.tile(batchCtx, img, grid, grid.Tiles[i])
				if errs[i] != nil {
					return plan.TileError{TileID: grid.Tiles[i].ID, Err: errs[i]}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			d.logger.Warn("batch complete with failures", "first_tile", start, "last_tile", end-1, "first_error", err)
		} else {
			d.logger.Debug("batch complete", "first_tile", start, "last_tile", end-1)
		}
	}

	res := &Result{Detections: slots}
	for i, o := range outcomes {
		switch o {
		case outcomeDone:
			res.Dispatched++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Dispatched++
			res.Failed++
		case outcomeCancelled:
			res.Cancelled++
		}
		if errs[i] != nil {
			res.Errors = append(res.Errors, plan.TileError{TileID: grid.Tiles[i].ID, Err: errs[i]})
		}
	}

	d.logger.Info("dispatch complete",
		"tiles", n,
		"dispatched", res.Dispatched,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"cancelled", res.Cancelled,
		"detections", res.Count())
	return res, nil
}

// tile processes one tile. Detections are stamped with the tile id.
func (d *Dispatcher) tile(ctx context.Context, img plan.Image, grid *tiling.Grid, tile plan.Tile) ([]plan.RawDetection, outcome, error) {
	region, err := imaging.ExtractTile(img.Pixels, tile, grid.TileSize)
	if err != nil {
		return d.fail(tile, fmt.Errorf("%w: %w", plan.ErrTileInferenceFailure, err))
	}

	if d.cfg.SkipBlankTiles && imaging.IsBlank(region, d.cfg.BlankTolerance) {
		d.metrics.RecordEvent(metrics.OpTileSkipped)
		d.logger.Debug("blank tile skipped", "tile", tile.ID)
		return []plan.RawDetection{}, outcomeSkipped, nil
	}
	if d.cfg.Enhance {
		region = imaging.Enhance(region)
	}

	data, err := imaging.EncodePNG(region)
	if err != nil {
		return d.fail(tile, fmt.Errorf("%w: %w", plan.ErrTileInferenceFailure, err))
	}

	if d.cfg.TileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TileTimeout)
		defer cancel()
	}

	start := time.Now()
	sent := region.Bounds().Size()
	dets, err := d.detector.Detect(ctx, inference.TileRequest{
		Tile:        tile,
		ImageWidth:  sent.X,
		ImageHeight: sent.Y,
		Image:       data,
		MIMEType:    imaging.PNGMimeType,
		Prompt:      inference.Prompt(tile, sent, grid.Columns, grid.Rows, d.elementTypes),
		Metrics:     d.metrics,
	})
	elapsed := time.Since(start)
	d.metrics.RecordTiming(metrics.OpTileInference, elapsed)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %v: %w", d.cfg.TileTimeout, err)
		}
		return d.fail(tile, fmt.Errorf("%w: %w", plan.ErrTileInferenceFailure, err))
	}

	out := make([]plan.RawDetection, 0, len(dets))
	for _, det := range dets {
		det.TileID = tile.ID
		out = append(out, det)
	}
	d.logger.Debug("tile analysed", "tile", tile.ID, "detections", len(out), "duration_ms", elapsed.Milliseconds())
	return out, outcomeDone, nil
}

func (d *Dispatcher) fail(tile plan.Tile, err error) ([]plan.RawDetection, outcome, error) {
	d.metrics.RecordEvent(metrics.OpTileFailure)
	d.logger.Warn("tile failed", "tile", tile.ID, "error", err)
	return []plan.RawDetection{}, outcomeFailed, err
}
