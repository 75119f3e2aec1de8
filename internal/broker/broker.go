// Package broker implements the Broker Node (spec.md §4.3): a queue of
// inbound publications drained by a dedicated worker, a local subscription
// map, neighbor links and a routing table for the Covering Administer
// protocol (spec.md §4.4), and durable-store-backed recovery.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pubsub-fabric/internal/logging"
	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/store"
	"github.com/adred-codev/pubsub-fabric/internal/subscriber"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

// CrashField is the test-only poison-pill sentinel (spec.md §4.3): a
// publication carrying this field causes processPublication to panic
// immediately, simulating a WorkerFault so recovery tests can exercise
// restart without waiting for an organic crash.
const CrashField = "__crash__"

// Recorder receives broker lifecycle observations for metrics export.
// Implementations must be safe for concurrent use; a nil Recorder is
// replaced with a no-op at construction.
type Recorder interface {
	SetQueueDepth(brokerID string, depth int)
	SetSubscriptionCount(brokerID string, count int)
	IncProcessed(brokerID string)
	IncMatched(brokerID string)
	IncWindowFired(brokerID string)
	IncCrash(brokerID string)
}

type noopRecorder struct{}

func (noopRecorder) SetQueueDepth(string, int)      {}
func (noopRecorder) SetSubscriptionCount(string, int) {}
func (noopRecorder) IncProcessed(string)            {}
func (noopRecorder) IncMatched(string)              {}
func (noopRecorder) IncWindowFired(string)          {}
func (noopRecorder) IncCrash(string)                {}

// Stats is a point-in-time snapshot of a broker's load, the per-broker
// stats listed under SPEC_FULL.md §5 "Supplemented Features".
type Stats struct {
	BrokerID          string
	QueueDepth        int
	SubscriptionCount int
	Running           bool
}

// Broker owns one node's subscriptions, inbound queue, neighbor links and
// routing table. Its id is stable across restarts — the Network
// reconstructs a Broker with the same id on failure (spec.md §4.5).
type Broker struct {
	ID                string
	DefaultWindowSize int

	store    store.Store
	registry *subscriber.Registry
	logger   zerolog.Logger
	recorder Recorder

	mu            sync.Mutex // guards subscriptions, routingTable and subscription buffers
	subscriptions map[string]*subscription.Subscription
	neighbors     []*Broker
	routingTable  map[string][]*subscription.Subscription

	queue *fifoQueue

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Broker. It does not start the worker — call Start.
func New(id string, defaultWindowSize int, st store.Store, registry *subscriber.Registry, logger zerolog.Logger, recorder Recorder) *Broker {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Broker{
		ID:                id,
		DefaultWindowSize: defaultWindowSize,
		store:             st,
		registry:          registry,
		logger:            logger,
		recorder:          recorder,
		subscriptions:     make(map[string]*subscription.Subscription),
		routingTable:      make(map[string][]*subscription.Subscription),
		queue:             newFIFOQueue(),
	}
}

// AddNeighbor registers a peer broker for the Covering Administer protocol.
// Not safe to call concurrently with administer/routePublication traffic —
// neighbor topology is fixed at network construction (spec.md §1 Non-goals).
func (b *Broker) AddNeighbor(n *Broker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.neighbors = append(b.neighbors, n)
}

// AddSubscription inserts sub into the local map, persists it durably, and
// returns its id (spec.md §4.3). Routing propagation (Covering Administer)
// is the caller's responsibility via Administer, kept separate so the
// Network can add a subscription without necessarily advertising it.
func (b *Broker) AddSubscription(ctx context.Context, sub *subscription.Subscription) (string, error) {
	b.mu.Lock()
	b.subscriptions[sub.ID] = sub
	count := len(b.subscriptions)
	b.mu.Unlock()

	b.recorder.SetSubscriptionCount(b.ID, count)

	if err := b.store.SaveSubscription(ctx, b.ID, sub); err != nil {
		return "", fmt.Errorf("broker %s: persist subscription %s: %w", b.ID, sub.ID, err)
	}

	logging.Event(b.logger, logging.EventSubscriptionAdded).
		Str("broker_id", b.ID).
		Str("subscription_id", sub.ID).
		Int("conditions", len(sub.Conditions)).
		Msg("subscription added")

	return sub.ID, nil
}

// RemoveSubscription deletes a subscription locally and from the durable
// store, including any window buffer snapshot.
func (b *Broker) RemoveSubscription(ctx context.Context, subscriptionID string) error {
	b.mu.Lock()
	delete(b.subscriptions, subscriptionID)
	count := len(b.subscriptions)
	b.mu.Unlock()

	b.recorder.SetSubscriptionCount(b.ID, count)

	if err := b.store.DeleteSubscription(ctx, b.ID, subscriptionID); err != nil {
		return fmt.Errorf("broker %s: delete subscription %s: %w", b.ID, subscriptionID, err)
	}

	logging.Event(b.logger, logging.EventSubscriptionRemoved).
		Str("broker_id", b.ID).
		Str("subscription_id", subscriptionID).
		Msg("subscription removed")
	return nil
}

// Publish enqueues a publication onto this broker's inbound FIFO.
// Non-blocking (spec.md §4.3).
func (b *Broker) Publish(pub model.Publication) {
	b.queue.push(pub)
	b.recorder.SetQueueDepth(b.ID, b.queue.depth())
}

// SubscriptionCount returns the number of subscriptions currently held.
func (b *Broker) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// Stats returns a point-in-time load snapshot.
func (b *Broker) Stats() Stats {
	b.runMu.Lock()
	running := b.running
	b.runMu.Unlock()
	return Stats{
		BrokerID:          b.ID,
		QueueDepth:        b.queue.depth(),
		SubscriptionCount: b.SubscriptionCount(),
		Running:           running,
	}
}

// ProcessPublication evaluates every local subscription against pub,
// notifying each matched subscriber at most once (spec.md §3, §8
// "At-most-once-per-subscriber"), then marks pub processed for this
// broker in the durable store.
//
// CrashField causes an immediate panic before any evaluation, the
// poison-pill contract spec.md §4.3 requires test harnesses to rely on.
func (b *Broker) ProcessPublication(ctx context.Context, pub model.Publication) error {
	if _, poison := pub.Fields[CrashField]; poison {
		panic(fmt.Sprintf("broker %s: poison pill publication %s", b.ID, pub.ID))
	}

	logging.Event(b.logger, logging.EventPublicationReceived).
		Str("broker_id", b.ID).
		Str("publication_id", pub.ID).
		Msg("publication received")

	notified := make(map[string]bool)

	b.mu.Lock()
	subs := make([]*subscription.Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		var matchedPub model.Publication
		matched := false

		if !sub.IsWindowed() {
			if sub.Matches(pub) {
				matchedPub, matched = pub, true
			}
		} else {
			b.mu.Lock()
			sub.Push(pub)
			bufLen := sub.BufferLen()
			b.mu.Unlock()

			logging.Event(b.logger, logging.EventWindowBufferUpdated).
				Str("broker_id", b.ID).
				Str("subscription_id", sub.ID).
				Int("buffer_size", bufLen).
				Int("window_size", sub.WindowSize).
				Msg("window buffer updated")

			if err := b.store.SaveWindowBuffer(ctx, sub.ID, pub); err != nil {
				logging.EventAt(b.logger, zerolog.WarnLevel, "window_buffer_persist_failed").
					Str("broker_id", b.ID).
					Str("subscription_id", sub.ID).
					Err(err).
					Msg("failed to persist window buffer entry")
			}

			if sub.Ready() {
				b.mu.Lock()
				meta, fired := sub.ProcessWindow()
				b.mu.Unlock()

				if err := b.store.ClearWindowBuffer(ctx, sub.ID); err != nil {
					logging.EventAt(b.logger, zerolog.WarnLevel, "window_buffer_clear_failed").
						Str("broker_id", b.ID).
						Str("subscription_id", sub.ID).
						Err(err).
						Msg("failed to clear window buffer snapshot")
				}

				if fired {
					b.recorder.IncWindowFired(b.ID)
					logging.Event(b.logger, logging.EventWindowProcessed).
						Str("broker_id", b.ID).
						Str("subscription_id", sub.ID).
						Str("meta_publication_id", meta.ID).
						Msg("window processed")
					matchedPub, matched = meta, true
				}
			}
		}

		if !matched {
			continue
		}

		b.recorder.IncMatched(b.ID)
		logging.Event(b.logger, logging.EventMatchFound).
			Str("broker_id", b.ID).
			Str("subscription_id", sub.ID).
			Str("publication_id", matchedPub.ID).
			Msg("match found")

		if notified[sub.SubscriberID] {
			continue
		}
		if subr, ok := b.registry.Lookup(sub.SubscriberID); ok {
			subr.Receive(matchedPub)
			notified[sub.SubscriberID] = true
			logging.Event(b.logger, logging.EventSubscriberNotified).
				Str("broker_id", b.ID).
				Str("subscriber_id", sub.SubscriberID).
				Str("subscription_id", sub.ID).
				Msg("subscriber notified")
		}
	}

	b.recorder.IncProcessed(b.ID)
	b.recorder.SetQueueDepth(b.ID, b.queue.depth())

	if err := b.store.MarkProcessed(ctx, b.ID, pub.ID); err != nil {
		return fmt.Errorf("broker %s: mark %s processed: %w", b.ID, pub.ID, err)
	}
	return nil
}

// IsAlive reports whether the broker's worker goroutine is running — the
// liveness probe the Network's health checker polls (spec.md §4.5).
func (b *Broker) IsAlive() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.running
}

// queueWait is the bounded wait used by the worker loop's queue pop,
// matching the Python source's queue.Queue(timeout=1).
const queueWait = 1 * time.Second
