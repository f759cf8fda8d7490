// Package inference connects tiles to an external vision model.
//
// A Detector receives one tile's PNG bytes and a textual directive and
// returns the elements it sees, in tile-local pixel coordinates. Adapters
// exist for several providers:
//
//   - gemini, vertex: Google Gemini through google.golang.org/genai
//   - vision: Cloud Vision object localisation
//   - openai, anthropic, ollama: multi-modal chat through langchaingo
//   - bedrock: the Amazon Bedrock Converse API
//
// Chat-style providers answer in JSON; ParseDetections accepts the common
// shapes they produce (pixel bbox, Gemini box_2d, x/y/width/height) and
// tolerates code fences and surrounding prose.
//
// CachingDetector memoises results in Redis keyed by the tile content, the
// directive and the model, so re-running an unchanged plan costs nothing.
//
// Detectors make exactly one provider call per Detect. Retrying is left to
// the provider SDKs.
package inference
