package sse

import "time"

// Default configuration values.
const (
	DefaultClientBufferSize  = 64
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultMaxClients        = 200
)

// Option configures a Broker.
type Option func(*Broker)

// WithClientBufferSize sets how many events a client may lag behind before
// it is disconnected.
func WithClientBufferSize(size int) Option {
	return func(b *Broker) {
		if size > 0 {
			b.clientBufferSize = size
		}
	}
}

// WithHeartbeatInterval sets how often idle streams receive a comment line.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(b *Broker) {
		if interval > 0 {
			b.heartbeatInterval = interval
		}
	}
}

// WithMaxClients caps concurrent subscribers. Zero means unlimited.
func WithMaxClients(maxClients int) Option {
	return func(b *Broker) {
		b.maxClients = maxClients
	}
}
