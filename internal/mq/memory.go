package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const memoryQueueSize = 256

// ErrClosed is returned by a closed MemoryBackend.
var ErrClosed = errors.New("mq: backend closed")

// MemoryBackend keeps queues in process. It serves single-instance
// deployments and tests. Failed messages are not redelivered.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]chan Message
	topics map[string]map[chan Message]struct{}
	done   chan struct{}
	closed bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		queues: make(map[string]chan Message),
		topics: make(map[string]map[chan Message]struct{}),
		done:   make(chan struct{}),
	}
}

func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	queue, err := m.queue(channel)
	if err != nil {
		return "", err
	}

	msg := newMemoryMessage(data, attrs)
	select {
	case queue <- msg:
		return msg.ID, nil
	case <-m.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	queue, err := m.queue(channel)
	if err != nil {
		return err
	}
	return m.consume(ctx, queue, handler)
}

// PublishFanout delivers to every current subscriber. Subscribers whose
// buffer is full miss the message.
func (m *MemoryBackend) PublishFanout(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := newMemoryMessage(data, attrs)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	for sub := range m.topics[channel] {
		select {
		case sub <- msg:
		default:
		}
	}
	return msg.ID, nil
}

func (m *MemoryBackend) SubscribeFanout(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	sub := make(chan Message, memoryQueueSize)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.topics[channel] == nil {
		m.topics[channel] = make(map[chan Message]struct{})
	}
	m.topics[channel][sub] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.topics[channel], sub)
		m.mu.Unlock()
	}()

	return m.consume(ctx, sub, handler)
}

// FanoutSubscribers reports how many fanout subscribers channel has.
func (m *MemoryBackend) FanoutSubscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics[channel])
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryBackend) queue(channel string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	queue, ok := m.queues[channel]
	if !ok {
		queue = make(chan Message, memoryQueueSize)
		m.queues[channel] = queue
	}
	return queue, nil
}

func (m *MemoryBackend) consume(ctx context.Context, source <-chan Message, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return ErrClosed
		case msg := <-source:
			_ = handler(ctx, msg)
		}
	}
}

func newMemoryMessage(data []byte, attrs map[string]string) Message {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return Message{
		ID:         newMessageID(),
		Data:       append([]byte(nil), data...),
		Attributes: copied,
	}
}
