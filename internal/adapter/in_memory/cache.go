package in_memory

import (
	"context"
	"sync"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
)

var _ port.DepthCache = (*Cache)(nil)

type cacheEntry struct {
	snap    *domain.OrderbookSnapshot
	expires time.Time
}

// Cache is the process-local depth cache used when no Redis is configured.
type Cache struct {
	mu      sync.Mutex
	entries map[solana.PublicKey]cacheEntry
	ttl     time.Duration
	clock   bclock.Clock
}

type CacheOption func(*Cache)

// WithTTL expires entries ttl after they were set, as Redis does.
func WithTTL(ttl time.Duration, clk bclock.Clock) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
		if clk != nil {
			c.clock = clk
		}
	}
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[solana.PublicKey]cacheEntry),
		clock:   bclock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) SetDepth(ctx context.Context, market solana.PublicKey, snap *domain.OrderbookSnapshot) error {
	e := cacheEntry{snap: snap.DeepCopy()}
	if c.ttl > 0 {
		e.expires = c.clock.Now().Add(c.ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[market] = e
	return nil
}

func (c *Cache) GetDepth(ctx context.Context, market solana.PublicKey) (*domain.OrderbookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[market]
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && !c.clock.Now().Before(e.expires) {
		delete(c.entries, market)
		return nil, nil
	}
	return e.snap.DeepCopy(), nil
}

func (c *Cache) Invalidate(ctx context.Context, market solana.PublicKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, market)
	return nil
}
