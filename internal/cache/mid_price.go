package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultMidPriceKey is the Redis hash holding ticker -> orderbook mid price.
const DefaultMidPriceKey = "v4/orderbook_mid_prices"

// hashReader is the slice of the go-redis client used here.
type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

// RedisMidPriceSource reads orderbook mid prices maintained by the order
// book service.
type RedisMidPriceSource struct {
	client  hashReader
	key     string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRedisMidPriceSource wraps a go-redis client (or anything exposing HMGet).
func NewRedisMidPriceSource(client hashReader, key string, timeout time.Duration, logger zerolog.Logger) *RedisMidPriceSource {
	if key == "" {
		key = DefaultMidPriceKey
	}
	return &RedisMidPriceSource{client: client, key: key, timeout: timeout, logger: logger}
}

// NewRedisClient builds a go-redis client and checks connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// MidPrices returns the mid price of each ticker, nil where absent or
// unparseable. A Redis failure is logged and yields nil for every ticker.
func (s *RedisMidPriceSource) MidPrices(ctx context.Context, tickers []string) map[string]*decimal.Decimal {
	out := make(map[string]*decimal.Decimal, len(tickers))
	if len(tickers) == 0 {
		return out
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vals, err := s.client.HMGet(ctx, s.key, tickers...).Result()
	if err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("failed to read orderbook mid prices")
		for _, t := range tickers {
			out[t] = nil
		}
		return out
	}

	for i, t := range tickers {
		out[t] = nil
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		str, ok := vals[i].(string)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(str)
		if err != nil {
			s.logger.Warn().Str("ticker", t).Str("value", str).Msg("invalid orderbook mid price")
			continue
		}
		out[t] = &d
	}
	return out
}
