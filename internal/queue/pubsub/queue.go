// Package pubsubqueue implements the dispatch queue on Google Cloud Pub/Sub.
package pubsubqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/patronemptor/titlesvc/internal/titles"
)

// Config identifies the topic and subscription used for dispatch.
type Config struct {
	TopicName    string
	Subscription string
	Buffer       int
}

// Queue dispatches tasks through a Pub/Sub topic. Delivery is
// at-least-once; consumers must tolerate duplicate tasks.
type Queue struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	tasks  chan titles.Task
	logger *zap.Logger
}

// New creates a Queue bound to an existing topic and subscription.
func New(ctx context.Context, client *pubsub.Client, cfg Config, logger *zap.Logger) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 16
	}

	topic := client.Topic(cfg.TopicName)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", cfg.TopicName, err)
	}
	if !ok {
		return nil, fmt.Errorf("pubsub topic %q does not exist", cfg.TopicName)
	}

	q := &Queue{
		topic:  topic,
		tasks:  make(chan titles.Task, buffer),
		logger: logger,
	}
	if cfg.Subscription != "" {
		q.sub = client.Subscription(cfg.Subscription)
	}
	return q, nil
}

// Enqueue publishes the task as a JSON payload. The publish is
// fire-and-forget; the client batches and retries in the background.
func (q *Queue) Enqueue(ctx context.Context, task titles.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	_ = result // fire-and-forget; no delivery confirmation to the caller
	return nil
}

// Run consumes the subscription and feeds the internal channel until the
// context finishes. Messages are acked once handed off; a consumer that
// dies before handoff gets the message redelivered.
func (q *Queue) Run(ctx context.Context) error {
	if q.sub == nil {
		return fmt.Errorf("subscription not configured")
	}
	err := q.sub.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		var task titles.Task
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			q.logger.Warn("dropping malformed task payload", zap.Error(err))
			msg.Ack()
			return
		}
		select {
		case q.tasks <- task:
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (titles.Task, error) {
	select {
	case <-ctx.Done():
		return titles.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task := <-q.tasks:
		return task, nil
	}
}

// Close stops the topic's background publisher.
func (q *Queue) Close() {
	q.topic.Stop()
}
