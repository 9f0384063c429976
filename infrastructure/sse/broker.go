// Package sse streams moderation events to connected dashboards as
// Server-Sent Events.
package sse

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/events"
	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
)

var (
	// ErrTooManyClients is returned by Subscribe when the client cap is hit.
	ErrTooManyClients = errors.New("too many sse clients")
	// ErrClosed is returned once the broker has been closed.
	ErrClosed = errors.New("sse broker closed")
)

// Broker fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full is disconnected and must reconnect.
type Broker struct {
	logger infralogger.Logger

	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  uint64
	closed  bool

	clientBufferSize  int
	heartbeatInterval time.Duration
	maxClients        int
}

// NewBroker creates a broker.
func NewBroker(logger infralogger.Logger, opts ...Option) *Broker {
	b := &Broker{
		logger:            logger,
		clients:           make(map[uint64]*client),
		clientBufferSize:  DefaultClientBufferSize,
		heartbeatInterval: DefaultHeartbeatInterval,
		maxClients:        DefaultMaxClients,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers event to every interested subscriber. It satisfies the
// moderation notifier contract.
func (b *Broker) Publish(_ context.Context, event events.ModerationEvent) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	var slow []uint64
	for id, c := range b.clients {
		if !c.offer(event) {
			slow = append(slow, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range slow {
		b.logger.Warn("SSE client buffer full, disconnecting",
			infralogger.Int64("client_id", int64(id)),
			infralogger.String("event_type", string(event.EventType)),
		)
		b.remove(id)
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done or cancel is called.
// The returned channel is closed when the subscription ends.
func (b *Broker) Subscribe(ctx context.Context, filter Filter) (<-chan events.ModerationEvent, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrClosed
	}
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		b.mu.Unlock()
		return nil, nil, ErrTooManyClients
	}
	b.nextID++
	c := &client{
		id:     b.nextID,
		events: make(chan events.ModerationEvent, b.clientBufferSize),
		filter: filter,
	}
	b.clients[c.id] = c
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		b.remove(c.id)
	}()
	return c.events, cancel, nil
}

// ClientCount returns the number of connected subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every subscriber and rejects further use.
func (b *Broker) Close() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[uint64]*client)
	b.closed = true
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	b.logger.Info("SSE broker closed", infralogger.Int("clients", len(clients)))
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	c, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()

	if ok {
		c.close()
	}
}
