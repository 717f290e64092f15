package mq

import "context"

// Channels used by the server and the worker.
const (
	// ChannelBoardEvents carries realtime board events between instances.
	// Every instance receives every event.
	ChannelBoardEvents = "board-events"
	// ChannelEmailDelivery is a work queue of outgoing emails consumed by
	// the worker.
	ChannelEmailDelivery = "email-delivery"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
//
// Publish/Subscribe form a work queue: each message goes to one subscriber.
// PublishFanout/SubscribeFanout broadcast: each subscriber gets every message
// published after it subscribed.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	PublishFanout(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	SubscribeFanout(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends a message to the named work queue.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named work queue.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// PublishFanout broadcasts a message to every subscriber of channel.
func (m *MQ) PublishFanout(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.PublishFanout(ctx, channel, data, attrs)
}

// SubscribeFanout receives every message broadcast on channel.
func (m *MQ) SubscribeFanout(ctx context.Context, channel string, handler Handler) error {
	return m.backend.SubscribeFanout(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
