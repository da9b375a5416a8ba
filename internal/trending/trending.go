// Package trending supplies the social trending feed. The feed is fetched
// from an upstream source and cached in Redis with a short TTL so every view
// session's startup fetch does not hammer the upstream.
package trending

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krakenlabs/krakbit/models"
)

// Provider yields the current trending posts.
type Provider interface {
	Trending(ctx context.Context) ([]models.TrendingPost, error)
}

// HTTPProvider fetches posts from an upstream JSON endpoint returning
// {"posts": [...]}.
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProvider{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProvider) Trending(ctx context.Context) ([]models.TrendingPost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trending: fetch %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trending: fetch %s: status %d", p.URL, resp.StatusCode)
	}
	var body struct {
		Posts []models.TrendingPost `json:"posts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("trending: decode %s: %w", p.URL, err)
	}
	return body.Posts, nil
}

// Static serves a fixed feed; used in tests and when no upstream is
// configured.
type Static []models.TrendingPost

func (s Static) Trending(ctx context.Context) ([]models.TrendingPost, error) {
	return []models.TrendingPost(s), nil
}

// Cached wraps a provider with a Redis cache. Cache failures degrade to the
// inner provider rather than failing the request.
type Cached struct {
	inner  Provider
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	logger *log.Logger
}

func NewCached(inner Provider, rdb *redis.Client, key string, ttl time.Duration, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.New(log.Writer(), "[TRENDING] ", log.LstdFlags)
	}
	if key == "" {
		key = "krakbit:trending"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{inner: inner, rdb: rdb, key: key, ttl: ttl, logger: logger}
}

func (c *Cached) Trending(ctx context.Context) ([]models.TrendingPost, error) {
	if raw, err := c.rdb.Get(ctx, c.key).Bytes(); err == nil {
		var posts []models.TrendingPost
		if err := json.Unmarshal(raw, &posts); err == nil {
			return posts, nil
		}
		c.logger.Printf("discarding corrupt cache entry %s", c.key)
	} else if err != redis.Nil {
		c.logger.Printf("cache read failed: %v", err)
	}

	posts, err := c.inner.Trending(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(posts); err == nil {
		if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
			c.logger.Printf("cache write failed: %v", err)
		}
	}
	return posts, nil
}
