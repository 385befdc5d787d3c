// Package memory contains an in-memory operator notifier for tests and
// single-node deployments without a message broker.
package memory

import (
	"context"
	"sync"

	"github.com/rashadk/media-courier/internal/pipeline"
)

// Notifier records operator events for inspection.
type Notifier struct {
	mu     sync.RWMutex
	events []pipeline.OperatorEvent
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// NotifyOperator records the event.
func (n *Notifier) NotifyOperator(_ context.Context, event pipeline.OperatorEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Events returns the recorded notifications.
func (n *Notifier) Events() []pipeline.OperatorEvent {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]pipeline.OperatorEvent, len(n.events))
	copy(out, n.events)
	return out
}
