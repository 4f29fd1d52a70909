package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
	"github.com/redis/go-redis/v9"
)

var _ port.DepthCache = (*RedisCache)(nil)

type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// RedisCache keeps order-book depth snapshots keyed by market address.
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

func NewRedisCache(cfg Config, logger *slog.Logger) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "swaprouter"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisCache{
		client:    rdb,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-cache"),
	}, nil
}

func (c *RedisCache) key(market solana.PublicKey) string {
	return c.keyPrefix + ":depth:" + market.String()
}

func (c *RedisCache) SetDepth(ctx context.Context, market solana.PublicKey, snap *domain.OrderbookSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal depth %s: %w", market, err)
	}
	return c.client.Set(ctx, c.key(market), b, c.ttl).Err()
}

// GetDepth returns nil, nil on a cache miss.
func (c *RedisCache) GetDepth(ctx context.Context, market solana.PublicKey) (*domain.OrderbookSnapshot, error) {
	b, err := c.client.Get(ctx, c.key(market)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap domain.OrderbookSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		c.logger.Warn("dropping corrupt depth entry", "market", market, "error", err)
		_ = c.Invalidate(ctx, market)
		return nil, nil
	}
	return &snap, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, market solana.PublicKey) error {
	return c.client.Del(ctx, c.key(market)).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
