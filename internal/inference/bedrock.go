package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

type converseFunc func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)

// BedrockDetector calls a Bedrock model through the Converse API.
type BedrockDetector struct {
	converse converseFunc
	model    string
	opts     ParseOptions
}

var _ Detector = (*BedrockDetector)(nil)

// NewBedrockDetector loads the default AWS credential chain for region.
func NewBedrockDetector(ctx context.Context, region, model string, opts ParseOptions) (*BedrockDetector, error) {
	if model == "" {
		return nil, fmt.Errorf("bedrock model id required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)
	return &BedrockDetector{
		converse: func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
			return client.Converse(ctx, in)
		},
		model: model,
		opts:  opts,
	}, nil
}

// Detect implements Detector.
func (b *BedrockDetector) Detect(ctx context.Context, req TileRequest) ([]plan.RawDetection, error) {
	format, err := bedrockImageFormat(req.MIMEType)
	if err != nil {
		return nil, err
	}
	out, err := b.converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberImage{Value: types.ImageBlock{
						Format: format,
						Source: &types.ImageSourceMemberBytes{Value: req.Image},
					}},
					&types.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{Temperature: aws.Float32(0)},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse failed: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, ErrEmptyResponse
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	return ParseDetections(text.String(), req, b.opts)
}

func bedrockImageFormat(mime string) (types.ImageFormat, error) {
	switch mime {
	case "image/png", "":
		return types.ImageFormatPng, nil
	case "image/jpeg":
		return types.ImageFormatJpeg, nil
	case "image/gif":
		return types.ImageFormatGif, nil
	case "image/webp":
		return types.ImageFormatWebp, nil
	default:
		return "", fmt.Errorf("bedrock does not accept %s images", mime)
	}
}
