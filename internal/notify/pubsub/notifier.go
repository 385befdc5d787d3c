// Package pubsub forwards operator events to a Google Cloud Pub/Sub
// topic watched by the on-call tooling.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/rashadk/media-courier/internal/pipeline"
)

// Notifier publishes operator events as JSON messages.
type Notifier struct {
	topic *pubsub.Topic
}

// New creates a Notifier for the provided topic.
func New(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

// NotifyOperator marshals the event and publishes it.
func (n *Notifier) NotifyOperator(ctx context.Context, event pipeline.OperatorEvent) error {
	if n.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal operator event: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish operator event: %w", err)
	}
	return nil
}
