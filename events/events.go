// Package events provides the in-process event bus. Components publish
// lifecycle events; notifiers and the watcher subscribe. The core never
// formats human-facing messages from events.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names one event kind
type Type string

const (
	DeploymentStarted Type = "deployment.started"
	DeploymentSuccess Type = "deployment.success"
	DeploymentFailed  Type = "deployment.failed"

	ProtectionQueued    Type = "protection.queued"
	ProtectionConfirmed Type = "protection.confirmed"
	ProtectionDenied    Type = "protection.denied"

	RegistryDriftDetected Type = "registry.drift_detected"

	SlotPromoted   Type = "slot.promoted"
	SlotRolledBack Type = "slot.rolled_back"

	EmergencyOpened Type = "emergency.opened"
	EmergencyClosed Type = "emergency.closed"
)

// Event is one published occurrence. Details is machine-oriented context,
// not a rendered message.
type Event struct {
	Type        Type
	Project     string
	Environment string
	Operation   string
	Details     string
	At          time.Time
}

// Bus fans events out to subscriber channels. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber and
// a warning is logged, so a stuck consumer cannot stall a deployment.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan Event),
	}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns its ID along with the receive channel.
func (b *Bus) Subscribe(buffer int) (string, <-chan Event) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers the event to every subscriber and mirrors it to the log
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	slog.Info("Event published",
		"type", evt.Type,
		"project", evt.Project,
		"environment", evt.Environment,
		"operation", evt.Operation,
		"details", evt.Details)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			slog.Warn("Event subscriber buffer full, event dropped",
				"subscriber", id,
				"type", evt.Type)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
