package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// Cache provides thread-safe caching of decoded plan rasters keyed by path.
//
// The MCP server answers several tool calls about the same drawing (grid,
// crops, calibration, analysis); the cache keeps it from decoding a large
// scan for each of them.
//
// # Example Usage
//
//	cache := imaging.NewCache()
//	img, err := cache.Load("/plans/level-2.tif")
//	if err != nil {
//	    return err
//	}
//	defer cache.Evict("/plans/level-2.tif")
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves a raster from the cache or decodes it from disk.
//
// Parameters:
//   - path: File path of the scan. PNG, JPEG, GIF, TIFF and BMP are supported.
//
// Returns:
//   - image.Image: The decoded, upright raster.
//   - error: Non-nil if the file cannot be opened or decoded.
//
// The path string is the cache key; relative and absolute spellings of the
// same file are cached separately.
func (c *Cache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := Open(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all rasters from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes one raster. Unknown paths are ignored.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Len returns the number of cached rasters.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Open decodes a scan from disk, applying EXIF orientation.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("failed to open image: %w", statErr)
		}
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Info contains metadata about a plan file.
type Info struct {
	// Width is the raster width in pixels.
	Width int `json:"width"`

	// Height is the raster height in pixels.
	Height int `json:"height"`

	// Format is the decoder name reported by the image registry, for example
	// "png", "jpeg" or "tiff".
	Format string `json:"format"`

	// ColorDepth is "8-bit" or "16-bit" per channel.
	ColorDepth string `json:"color_depth"`

	// Grayscale reports whether the decoded raster is single channel, which
	// is typical for monochrome plan scans.
	Grayscale bool `json:"grayscale"`

	// FileSizeBytes is the size of the file on disk.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadInfo loads a raster through the cache and describes it.
//
// The format is sniffed from the file contents, not the extension.
func LoadInfo(cache *Cache, path string) (*Info, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		format = "unknown"
	}

	depth := "8-bit"
	gray := false
	switch img.(type) {
	case *image.Gray:
		gray = true
	case *image.Gray16:
		gray = true
		depth = "16-bit"
	case *image.RGBA64, *image.NRGBA64:
		depth = "16-bit"
	}

	bounds := img.Bounds()
	return &Info{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		ColorDepth:    depth,
		Grayscale:     gray,
		FileSizeBytes: stat.Size(),
	}, nil
}
