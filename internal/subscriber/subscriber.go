// Package subscriber implements the Subscriber Endpoint (spec.md §4.6): a
// named sink that receives matched publications, tracks delivery latency,
// and holds references to its subscriptions for enumeration (not
// ownership — spec.md §9 "subscribers weakly reference their
// subscriptions").
package subscriber

import (
	"sync"
	"time"

	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

// Subscriber is a process-lifetime endpoint identified by a stable id.
// State is mutated only by the broker thread delivering a match and by
// the subscriber's own code — callers must keep Receive cheap (spec.md
// §5: "the delivery path must not block on arbitrary subscriber work").
type Subscriber struct {
	ID string

	mu              sync.Mutex
	subscriptions   map[string]*subscription.Subscription
	receivedMessages []model.Publication
	latencies       []time.Duration
	onReceive       func(model.Publication)
}

// New creates a Subscriber. onReceive, if non-nil, is invoked after each
// received publication is recorded — it must return quickly or enqueue
// its own work, never block on I/O.
func New(id string, onReceive func(model.Publication)) *Subscriber {
	return &Subscriber{
		ID:            id,
		subscriptions: make(map[string]*subscription.Subscription),
		onReceive:     onReceive,
	}
}

// Own registers a subscription as belonging to this subscriber, for
// enumeration via Subscriptions. The broker — not the Subscriber — owns
// the Subscription's lifetime and window buffer.
func (s *Subscriber) Own(sub *subscription.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = sub
}

// Forget removes a subscription reference (e.g. after RemoveSubscription).
func (s *Subscriber) Forget(subscriptionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, subscriptionID)
}

// Subscriptions returns the subscriptions this subscriber owns.
func (s *Subscriber) Subscriptions() []*subscription.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*subscription.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	return out
}

// Receive records a matched publication and its delivery latency. It is
// invoked by a broker worker at most once per distinct source publication
// (spec.md §3 invariant, §8 "At-most-once-per-subscriber"), even when
// several of the subscriber's own subscriptions matched.
func (s *Subscriber) Receive(pub model.Publication) {
	s.mu.Lock()
	s.receivedMessages = append(s.receivedMessages, pub)
	if !pub.Timestamp.IsZero() {
		s.latencies = append(s.latencies, time.Since(pub.Timestamp))
	}
	cb := s.onReceive
	s.mu.Unlock()

	if cb != nil {
		cb(pub)
	}
}

// ReceivedMessages returns a snapshot of every publication delivered so far.
func (s *Subscriber) ReceivedMessages() []model.Publication {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Publication, len(s.receivedMessages))
	copy(out, s.receivedMessages)
	return out
}

// AverageLatency returns the mean delivery latency across every sample
// recorded so far, or 0 if none.
func (s *Subscriber) AverageLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.latencies {
		total += d
	}
	return total / time.Duration(len(s.latencies))
}

// ClearMessages discards the received-message log (used between test
// scenarios and evaluation runs).
func (s *Subscriber) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivedMessages = nil
	s.latencies = nil
}

// Registry resolves subscriber ids to live Subscriber instances. Durable
// subscription snapshots persist only a subscriberId (spec.md §9); the
// registry is the process-local service that resolves the reference on
// recovery, avoiding an ownership cycle between subscriptions and
// subscribers.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Subscriber
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Subscriber)}
}

// Register adds a subscriber to the registry.
func (r *Registry) Register(s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
}

// Unregister removes a subscriber from the registry.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Lookup resolves a subscriber id to its live instance.
func (r *Registry) Lookup(id string) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}
