package inference

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Chat providers served through langchaingo.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// ChatDetector sends the tile as an image part of a chat message.
type ChatDetector struct {
	llm  llms.Model
	opts ParseOptions
}

var _ Detector = (*ChatDetector)(nil)

// ChatConfig selects a langchaingo provider.
type ChatConfig struct {
	Provider  string
	Model     string
	APIKey    string
	ServerURL string
}

// NewChatDetector creates the provider's model.
func NewChatDetector(cfg ChatConfig, opts ParseOptions) (*ChatDetector, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.ServerURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", cfg.Provider)
	}

	return &ChatDetector{llm: model, opts: opts}, nil
}

// Detect implements Detector.
func (c *ChatDetector) Detect(ctx context.Context, req TileRequest) ([]plan.RawDetection, error) {
	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(req.MIMEType, req.Image),
				llms.TextPart(req.Prompt),
			},
		},
	}

	resp, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return ParseDetections(resp.Choices[0].Content, req, c.opts)
}
