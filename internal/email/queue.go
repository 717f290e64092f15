package email

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/boardsync/apiserver/internal/mq"
)

// Publisher is the part of the message queue the QueueSender needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// QueueSender hands messages to the email-delivery queue for the worker.
type QueueSender struct {
	publisher Publisher
}

func NewQueueSender(publisher Publisher) *QueueSender {
	return &QueueSender{publisher: publisher}
}

func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = q.publisher.Publish(ctx, mq.ChannelEmailDelivery, data, map[string]string{"type": "email"})
	return err
}

// Subscriber is the part of the message queue the Worker needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Worker drains the email-delivery queue into a Sender.
type Worker struct {
	subscriber Subscriber
	sender     Sender
	logger     *slog.Logger
}

func NewWorker(subscriber Subscriber, sender Sender, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{subscriber: subscriber, sender: sender, logger: logger}
}

// Run consumes until ctx is done. Every message is acknowledged: delivery
// failures are logged and never requeued.
func (w *Worker) Run(ctx context.Context) error {
	return w.subscriber.Subscribe(ctx, mq.ChannelEmailDelivery, w.handle)
}

func (w *Worker) handle(ctx context.Context, raw mq.Message) error {
	var msg Message
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		// Undecodable messages would be redelivered forever.
		w.logger.ErrorContext(ctx, "drop malformed email message", "message_id", raw.ID, "error", err)
		return nil
	}
	if err := w.sender.Send(ctx, msg); err != nil {
		w.logger.ErrorContext(ctx, "email delivery failed", "message_id", raw.ID, "to", msg.To, "error", err)
		return nil
	}
	w.logger.InfoContext(ctx, "email delivered", "message_id", raw.ID, "to", msg.To)
	return nil
}
