package message_broaker

import "context"

// MessageBroker publishes opaque payloads to a single configured destination.
type MessageBroker interface {
	Publish(ctx context.Context, message []byte) error
	Close() error
}
