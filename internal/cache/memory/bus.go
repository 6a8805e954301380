// Package memory provides in-process implementations of the cache-layer
// interfaces for single-replica deployments without Redis.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

const (
	subscriberBuffer = 64
	defaultStreamLen = 1000
)

// Bus implements domain.SignalBus with in-process fan-out. Slow subscribers
// drop messages rather than block publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][][]byte
	maxLen  int
}

// NewBus creates a Bus whose streams keep at most maxLen entries.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = defaultStreamLen
	}
	return &Bus{
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][][]byte),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every current subscriber of channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber that lives until ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// StreamAppend appends payload to a bounded in-memory stream.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := append(b.streams[stream], append([]byte(nil), payload...))
	if len(s) > b.maxLen {
		s = s[len(s)-b.maxLen:]
	}
	b.streams[stream] = s
	return nil
}

// StreamLen returns the number of entries retained in stream.
func (b *Bus) StreamLen(stream string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams[stream])
}

var _ domain.SignalBus = (*Bus)(nil)
