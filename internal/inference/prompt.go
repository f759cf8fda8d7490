package inference

import (
	"fmt"
	"image"
	"strings"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Prompt builds the directive sent with a tile. It names the element types
// of interest and the expected JSON shape, and tells the model where the
// tile sits so it can ignore elements cut by the tile edge. sent is the size
// of the encoded raster; when it is larger than the tile the remainder is
// padding.
func Prompt(tile plan.Tile, sent image.Point, columns, rows int, elementTypes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analysing tile %d (row %d of %d, column %d of %d) of a scanned construction plan. ",
		tile.ID, tile.Row+1, rows, tile.Column+1, columns)
	if sent.X > tile.Width || sent.Y > tile.Height {
		fmt.Fprintf(&b, "The image is %dx%d pixels. Only the top-left %dx%d pixels are plan content; the rest is blank padding.\n\n",
			sent.X, sent.Y, tile.Width, tile.Height)
	} else {
		fmt.Fprintf(&b, "The image is %dx%d pixels.\n\n", tile.Width, tile.Height)
	}
	b.WriteString("Detect every instance of these element types: ")
	b.WriteString(strings.Join(elementTypes, ", "))
	b.WriteString(".\n\n")
	b.WriteString("Answer with a JSON array only. Each item must be:\n")
	b.WriteString(`{"type": "<element type>", "bbox": [x1, y1, x2, y2], "confidence": <0..1>, "properties": {}}`)
	b.WriteString("\n\nCoordinates are integer pixels relative to the image's top-left corner. ")
	b.WriteString("Report elements that are partly cut by the tile edge with the visible part only. ")
	b.WriteString("For dimension annotations put the printed text in properties.value. ")
	b.WriteString("Put explicit sizes you can read (for example width_mm) in properties. ")
	b.WriteString("Return [] if nothing is visible.")
	return b.String()
}
