package citation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Cached decorates a Fetcher with a Redis read-through cache. Redis failures
// are logged and fall through to the wrapped fetcher. Misses of the
// underlying fetcher are not cached.
type Cached struct {
	next   Fetcher
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Fetcher = (*Cached)(nil)

type CacheOptions struct {
	// Prefix defaults to "litgraph:citation:".
	Prefix string
	// TTL of 0 keeps entries until evicted.
	TTL time.Duration
}

func NewCached(next Fetcher, client *redis.Client, opts CacheOptions) *Cached {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "litgraph:citation:"
	}
	return &Cached{next: next, client: client, prefix: prefix, ttl: opts.TTL}
}

func (c *Cached) paperKey(id string) string {
	return fmt.Sprintf("%spaper:%s", c.prefix, id)
}

func (c *Cached) edgeKey(edge, id string, limit int) string {
	return fmt.Sprintf("%s%s:%s:%d", c.prefix, edge, id, limit)
}

func readThrough[T any](ctx context.Context, c *Cached, key string, load func() (T, error)) (T, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		logger.Warn("[Citation] Dropping undecodable cache entry", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("[Citation] Cache read failed", "key", key, "err", err)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("[Citation] Cache write failed", "key", key, "err", err)
	}
	return v, nil
}

func (c *Cached) GetPaper(ctx context.Context, id string) (common.Paper, error) {
	return readThrough(ctx, c, c.paperKey(id), func() (common.Paper, error) {
		return c.next.GetPaper(ctx, id)
	})
}

func (c *Cached) GetReferences(ctx context.Context, id string, limit int) ([]common.PaperRef, error) {
	return readThrough(ctx, c, c.edgeKey("refs", id, limit), func() ([]common.PaperRef, error) {
		return c.next.GetReferences(ctx, id, limit)
	})
}

func (c *Cached) GetCitations(ctx context.Context, id string, limit int) ([]common.PaperRef, error) {
	return readThrough(ctx, c, c.edgeKey("cites", id, limit), func() ([]common.PaperRef, error) {
		return c.next.GetCitations(ctx, id, limit)
	})
}
