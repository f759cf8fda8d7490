// Package imaging loads plan rasters and produces the per-tile pixel payloads
// sent to the vision collaborator.
//
// The source raster is never modified. Every operation that changes pixels
// (cropping, enhancement, overlays) returns a new image.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. For regions, (x1,y1) is
// inclusive and (x2,y2) is exclusive.
//
// # Formats
//
// PNG, JPEG, GIF, TIFF and BMP scans are decoded. EXIF orientation is applied
// on load so that phone photographs of drawings come out upright. Tile
// payloads are always encoded as PNG.
//
// # Thread Safety
//
// Cache is safe for concurrent use. The remaining functions are stateless and
// may be called concurrently on the same source image, which is what the tile
// dispatcher does.
//
// # Performance Considerations
//
// A 300 DPI A1 scan decodes to roughly 7000x10000 pixels. Cached rasters stay
// in memory until Evict or Clear is called.
package imaging
