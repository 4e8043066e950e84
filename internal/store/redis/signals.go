package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"candlepipe/internal/model"
)

// SignalChannel is the pub/sub channel every signal is published on.
const SignalChannel = "pub:signals"

// SignalPublisher appends every signal to a per-strategy stream and
// publishes it. Publishing is best effort: failures are logged and the run
// continues.
type SignalPublisher struct {
	client  *goredis.Client
	cb      *CircuitBreaker
	maxLen  int64
	timeout time.Duration
}

// NewSignalPublisher shares client with the candle writer but keeps its own
// breaker.
func NewSignalPublisher(client *goredis.Client) *SignalPublisher {
	return &SignalPublisher{
		client:  client,
		cb:      NewCircuitBreaker(5, 10*time.Second),
		maxLen:  defaultStreamMaxLen,
		timeout: 2 * time.Second,
	}
}

// SignalStreamKey is the stream holding the signals of strategy.
func SignalStreamKey(strategy string) string { return "signals:" + strategy }

func (p *SignalPublisher) OnSignals(ctx context.Context, signals []model.Signal) {
	if len(signals) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.cb.Execute(ctx, func(ctx context.Context) error {
		pipe := p.client.Pipeline()
		for _, s := range signals {
			data, err := json.Marshal(s)
			if err != nil {
				return err
			}
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: SignalStreamKey(s.Strategy),
				MaxLen: p.maxLen,
				Approx: true,
				Values: map[string]interface{}{"data": string(data)},
			})
			pipe.Publish(ctx, SignalChannel, string(data))
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		log.Printf("[redis] publish %d signals: %v", len(signals), err)
	}
}
