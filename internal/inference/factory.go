package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/metrics"
)

// Provider names accepted by New.
const (
	ProviderGemini  = "gemini"
	ProviderVertex  = "vertex"
	ProviderVision  = "vision"
	ProviderBedrock = "bedrock"
)

// New builds the configured detector, wrapped in a Redis cache when an
// address is set. The returned cleanup releases provider and cache clients.
func New(ctx context.Context, cfg config.Inference, logger *slog.Logger, m *metrics.Collector) (Detector, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := ParseOptions{ElementTypes: cfg.ElementTypes, LabelMap: cfg.LabelMap}
	closers := []func() error{}

	var det Detector
	switch provider := strings.ToLower(cfg.Provider); provider {
	case ProviderGemini, ProviderVertex:
		gc := GeminiConfig{Model: cfg.Model, APIKey: cfg.APIKey}
		if provider == ProviderVertex {
			gc.Project, gc.Location = cfg.Project, cfg.Location
		}
		g, err := NewGeminiDetector(ctx, gc, opts)
		if err != nil {
			return nil, nil, err
		}
		det = g

	case ProviderVision:
		v, err := NewVisionDetector(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, v.Close)
		det = v

	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
		c, err := NewChatDetector(ChatConfig{
			Provider:  provider,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			ServerURL: cfg.ServerURL,
		}, opts)
		if err != nil {
			return nil, nil, err
		}
		det = c

	case ProviderBedrock:
		b, err := NewBedrockDetector(ctx, cfg.Region, cfg.Model, opts)
		if err != nil {
			return nil, nil, err
		}
		det = b

	default:
		return nil, nil, fmt.Errorf("unsupported inference provider: %q", cfg.Provider)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, inference cache disabled", "address", cfg.Redis.Addr, "error", err)
			_ = rdb.Close()
		} else {
			logger.Info("inference cache enabled", "address", cfg.Redis.Addr, "ttl", cfg.CacheTTL)
			closers = append(closers, rdb.Close)
			det = NewCachingDetector(rdb, cfg.CacheTTL, det, cfg.Provider+"/"+cfg.Model, m)
		}
	}

	logger.Info("inference provider ready", "provider", cfg.Provider, "model", cfg.Model)
	return det, closeAll(closers), nil
}

func closeAll(closers []func() error) func() error {
	return func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}
