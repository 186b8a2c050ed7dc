// Package publisher defines the broker-agnostic interface used to export
// archiver events to external message systems.
package publisher

import "context"

// Publisher sends one encoded message to a topic or subject and returns the
// broker-assigned message ID when the broker provides one.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Close() error
}
