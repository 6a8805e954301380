package domain

import (
	"context"
	"time"
)

// RateLimiter provides request rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Channel and stream names used for oracle updates.
const (
	OracleUpdatesChannel = "oracle:updates"
	OracleUpdatesStream  = "oracle:updates:log"
)

// BondChannel returns the pub/sub channel carrying updates for one bond.
func BondChannel(bondID string) string {
	return OracleUpdatesChannel + ":" + bondID
}
