package inference

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiDetector asks a Gemini model for detections in JSON.
type GeminiDetector struct {
	models contentGenerator
	model  string
	opts   ParseOptions
}

var _ Detector = (*GeminiDetector)(nil)

// GeminiConfig selects the Gemini backend. With Project set the Vertex AI
// backend is used with application default credentials; otherwise APIKey
// authenticates against the Gemini API.
type GeminiConfig struct {
	Model    string
	APIKey   string
	Project  string
	Location string
}

// NewGeminiDetector creates a Gemini client.
func NewGeminiDetector(ctx context.Context, cfg GeminiConfig, opts ParseOptions) (*GeminiDetector, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.Project != "" {
		cc = &genai.ClientConfig{Project: cfg.Project, Location: cfg.Location, Backend: genai.BackendVertexAI}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiDetector{models: client.Models, model: model, opts: opts}, nil
}

// Detect implements Detector.
func (g *GeminiDetector) Detect(ctx context.Context, req TileRequest) ([]plan.RawDetection, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Image, req.MIMEType),
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser),
	}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API request failed: %w", err)
	}
	return ParseDetections(resp.Text(), req, g.opts)
}
