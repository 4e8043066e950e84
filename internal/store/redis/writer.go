// Package redis publishes enriched candles and strategy signals to Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"candlepipe/internal/metrics"
	"candlepipe/internal/model"
)

const (
	defaultStreamMaxLen = 5000
	defaultLatestTTL    = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	StreamMaxLen int64         // approximate cap per candle stream
	LatestTTL    time.Duration // TTL of the latest-candle key; 0 uses the default

	MaxFailures  int           // consecutive failures before the breaker opens
	ResetTimeout time.Duration // how long the breaker stays open
}

// Writer persists candles to Redis: the latest candle per symbol under a
// key, every candle on a capped stream, and a pub/sub notification. Writes
// go through a CircuitBreaker so a dead Redis costs one fast error per
// candle instead of a timeout.
type Writer struct {
	client  *goredis.Client
	cb      *CircuitBreaker
	maxLen  int64
	ttl     time.Duration
	metrics *metrics.Pipeline
}

// New connects, pings the server and returns a Writer.
func New(cfg WriterConfig, m *metrics.Pipeline) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg, m), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig, m *metrics.Pipeline) *Writer {
	maxFailures, reset := cfg.MaxFailures, cfg.ResetTimeout
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if reset <= 0 {
		reset = 10 * time.Second
	}
	w := &Writer{
		client:  client,
		cb:      NewCircuitBreaker(maxFailures, reset),
		maxLen:  cfg.StreamMaxLen,
		ttl:     cfg.LatestTTL,
		metrics: m,
	}
	if w.maxLen <= 0 {
		w.maxLen = defaultStreamMaxLen
	}
	if w.ttl <= 0 {
		w.ttl = defaultLatestTTL
	}
	w.cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
		w.metrics.SetBreakerState("redis", int(to))
	}
	return w
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker returns the writer's circuit breaker.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// Persist writes c. It returns ErrCircuitOpen without touching the network
// while the breaker is open.
func (w *Writer) Persist(ctx context.Context, c *model.Candle) error {
	data, err := CandlePayload(c)
	if err != nil {
		return err
	}
	return w.cb.Execute(ctx, func(ctx context.Context) error {
		pipe := w.client.Pipeline()
		pipe.Set(ctx, LatestKey(c.Symbol, c.Timespan), data, w.ttl)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(c.Symbol, c.Timespan),
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, ChannelKey(c.Symbol, c.Timespan), data)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis persist %s: %w", c.Key(), err)
		}
		return nil
	})
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

// LatestKey is the key holding the newest candle of symbol.
func LatestKey(symbol string, span model.Timespan) string {
	return "candle:" + string(span) + ":latest:" + symbol
}

// StreamKey is the capped stream of every candle of symbol.
func StreamKey(symbol string, span model.Timespan) string {
	return "candle:" + string(span) + ":" + symbol
}

// ChannelKey is the pub/sub channel notified on every write.
func ChannelKey(symbol string, span model.Timespan) string {
	return "pub:candle:" + string(span) + ":" + symbol
}

type candleEnvelope struct {
	*model.Candle
	Attachments model.Attachments `json:"attachments"`
}

// CandlePayload is the JSON stored for c: the OHLCV fields plus an
// "attachments" object.
func CandlePayload(c *model.Candle) (string, error) {
	b, err := json.Marshal(candleEnvelope{Candle: c, Attachments: c.Attachments})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", c.Key(), err)
	}
	return string(b), nil
}
