// Package server implements the MCP (Model Context Protocol) server for plan
// analysis tools.
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Plan information:
//   - plan_load: Load a plan and report its metadata and tile grid size
//
// Tiling:
//   - plan_tile_grid: Tile grid with an outlined preview
//   - plan_tile_crop: One tile window as a PNG
//
// Evidence:
//   - plan_detect_lines: Line segments, optionally with arrowheads
//   - plan_ocr_region: Text with word boxes
//
// Analysis:
//   - plan_calibrate_scale: Pixels-per-millimetre estimate from the page text
//   - plan_analyze: The full tiled analysis run
//
// # Image Caching
//
// Loaded plans are cached by path for the lifetime of the server process, so
// a client can inspect the grid, crop tiles and run the analysis without
// decoding the raster again.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000 and the Go error string as data. A plan_analyze call fails only on
// invalid configuration; tile and element failures are part of its result.
package server
