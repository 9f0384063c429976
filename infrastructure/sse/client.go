package sse

import (
	"sync"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/events"
)

// Filter reports whether a subscriber wants an event.
type Filter func(events.ModerationEvent) bool

// TypeFilter accepts only the listed event types. No types accepts all.
func TypeFilter(types ...events.EventType) Filter {
	if len(types) == 0 {
		return nil
	}
	allowed := make(map[events.EventType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(e events.ModerationEvent) bool {
		_, ok := allowed[e.EventType]
		return ok
	}
}

type client struct {
	id     uint64
	events chan events.ModerationEvent
	filter Filter
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.events) })
}

// offer queues e without blocking. It returns false when the client's
// buffer is full.
func (c *client) offer(e events.ModerationEvent) bool {
	if c.filter != nil && !c.filter(e) {
		return true
	}
	select {
	case c.events <- e:
		return true
	default:
		return false
	}
}
