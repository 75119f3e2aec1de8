// Package store implements the durable state layer spec.md §6 describes:
// subscription snapshots per broker, publication bodies keyed by id,
// per-broker unprocessed-publication sets, and window-buffer snapshots —
// all carrying a 3600s-class TTL. The concrete realization is Redis
// (github.com/redis/go-redis/v9), matching original_source/core/
// broker_network.py's `redis.Redis` client one-for-one.
package store

import (
	"context"
	"time"

	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

// Store is the durable key/value + list + set service the broker fabric
// depends on. Every method accepts a context so callers can bound the
// blocking round trip (spec.md §5 "Durable Store round-trips (blocking,
// with client timeout)").
type Store interface {
	// SaveSubscription persists (brokerID, sub) under
	// subscriptions:{brokerID} (a hash keyed by subscription id).
	SaveSubscription(ctx context.Context, brokerID string, sub *subscription.Subscription) error

	// LoadSubscriptions reconstructs every subscription stored for a
	// broker, for use during recovery.
	LoadSubscriptions(ctx context.Context, brokerID string) ([]*subscription.Subscription, error)

	// DeleteSubscription removes a subscription's durable snapshot and
	// its window buffer snapshot, if any.
	DeleteSubscription(ctx context.Context, brokerID, subscriptionID string) error

	// SavePublication persists a publication body under
	// publication:{pubID}, and atomically marks it unprocessed for every
	// broker in brokerIDs (spec.md §4.5 step 2: a single pipeline).
	SavePublication(ctx context.Context, pub model.Publication, brokerIDs []string) error

	// LoadPublication reads a publication body by id.
	LoadPublication(ctx context.Context, pubID string) (model.Publication, error)

	// UnprocessedIDs lists the publication ids still unprocessed for a
	// broker (unprocessed_pubs:{brokerID}).
	UnprocessedIDs(ctx context.Context, brokerID string) ([]string, error)

	// MarkProcessed removes a publication id from a broker's unprocessed
	// set, once processPublication has completed for it.
	MarkProcessed(ctx context.Context, brokerID, pubID string) error

	// SaveWindowBuffer appends a publication to a subscription's window
	// buffer snapshot (window_buffer:{subID}).
	SaveWindowBuffer(ctx context.Context, subscriptionID string, pub model.Publication) error

	// ClearWindowBuffer empties a subscription's window buffer snapshot
	// (called whenever the in-memory buffer tumbles).
	ClearWindowBuffer(ctx context.Context, subscriptionID string) error
}

// DefaultTTL is the default expiry spec.md §6's key table assigns to every
// durable key (3600s in the source; configurable here).
const DefaultTTL = 3600 * time.Second
