package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ironsheep/plan-tiler/internal/metrics"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

const (
	defaultCacheTTL       = 24 * time.Hour
	defaultCacheNamespace = "plan-tiler:detections"
)

// CachingDetector decorates a Detector with Redis caching. Entries are keyed
// by the tile pixels, the directive and the model, so identical tiles share
// one provider call across runs.
type CachingDetector struct {
	inner     Detector
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	model     string
	metrics   *metrics.Collector
}

var _ Detector = (*CachingDetector)(nil)

// NewCachingDetector wraps inner. If ttl is 0 it defaults to 24 hours. A nil
// client bypasses the cache.
func NewCachingDetector(rdb *redis.Client, ttl time.Duration, inner Detector, model string, m *metrics.Collector) *CachingDetector {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachingDetector{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: defaultCacheNamespace,
		model:     model,
		metrics:   m,
	}
}

// Detect returns cached detections when present, otherwise calls the inner
// detector and stores its answer. Failed calls are not cached.
func (c *CachingDetector) Detect(ctx context.Context, req TileRequest) ([]plan.RawDetection, error) {
	if c.rdb == nil {
		return c.inner.Detect(ctx, req)
	}

	key := c.cacheKey(req)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []plan.RawDetection
		if err := json.Unmarshal(b, &out); err == nil {
			c.collector(req).RecordEvent(metrics.OpCacheHit)
			for i := range out {
				out[i].TileID = req.Tile.ID
			}
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.Detect(ctx, req)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return out, nil
}

// collector prefers the run's collector carried on the request.
func (c *CachingDetector) collector(req TileRequest) *metrics.Collector {
	if req.Metrics != nil {
		return req.Metrics
	}
	return c.metrics
}

// cacheKey hashes everything that determines the provider's answer.
func (c *CachingDetector) cacheKey(req TileRequest) string {
	h := sha256.New()
	h.Write(req.Image)
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write([]byte(c.model))
	return fmt.Sprintf("%s:%s", c.namespace, hex.EncodeToString(h.Sum(nil)))
}
