// ABOUTME: In-memory fan-out broadcaster keyed by session id
// ABOUTME: Publishes envelopes to every subscriber of a session without blocking

package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/realtime-gateway/internal/envelope"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Broadcaster provides in-memory pub/sub of envelopes per session.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *envelope.Envelope // sessionID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *envelope.Envelope),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a subscriber for a session. The returned channel is
// closed when ctx is cancelled, on Unsubscribe, or on Close.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan *envelope.Envelope, string) {
	subID := uuid.New().String()
	ch := make(chan *envelope.Envelope, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan *envelope.Envelope)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session_id", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish sends env to every subscriber of sessionID and returns how many
// received it. Subscribers with full buffers are skipped.
func (b *Broadcaster) Publish(sessionID string, env *envelope.Envelope) int {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; they never block.
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for subID, ch := range b.subscribers[sessionID] {
		select {
		case ch <- env:
			delivered++
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"session_id", sessionID,
				"sub_id", subID,
				"envelope_id", env.ID)
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers for a session.
func (b *Broadcaster) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sessionID])
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("subscriber removed", "session_id", sessionID, "sub_id", subID)
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, sessionID)
	}
	b.logger.Debug("broadcaster closed")
}
