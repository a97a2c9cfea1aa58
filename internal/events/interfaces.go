// Package events provides the pub/sub abstraction used to fan out
// trigger firing notifications to in-process and external consumers.
package events

import (
	"context"
	"time"
)

// Message is a received event with its routing subject.
type Message interface {
	// Data returns the raw message payload.
	Data() []byte

	// Subject returns the message subject.
	Subject() string

	// Timestamp returns the publish time.
	Timestamp() time.Time
}

// Publisher publishes messages to a subject.
type Publisher interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases resources.
	Close() error
}

// Subscriber delivers messages matching a subject pattern. Patterns use
// NATS-style tokens: "*" matches one token, ">" matches the rest.
type Subscriber interface {
	// Subscribe returns a channel of matching messages and an
	// unsubscribe function. The channel is closed on unsubscribe or
	// engine shutdown.
	Subscribe(ctx context.Context, pattern string) (<-chan Message, func(), error)
}

// Engine combines publishing and subscribing.
type Engine interface {
	Publisher
	Subscriber
}
