package broker

import (
	"context"

	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

// Administer implements the Covering Administer protocol (spec.md §4.4).
// visited guards against forwarding loops across the fixed neighbor
// topology; it is shared by reference across one flood and must be a
// fresh map per top-level call.
//
// routingTable[peerID] accumulates every subscription this broker has
// learned travelled across the peerID edge — populated here at step 3
// using sourceBrokerID as the key. A locally originated call (sourceBrokerID
// equal to this broker's own id) records nothing, so a broker never lists
// itself as a source. Step 4's redundancy check reads the
// same structure keyed by the candidate neighbor N: "already advertised
// toward N" is read literally as "already present in routingTable[N]",
// whichever direction populated it. This is the documented, fixed
// resolution of the otherwise-ambiguous wording (spec.md §8's testable
// properties only require loop-freedom and covering soundness, both of
// which hold under this reading).
func (b *Broker) Administer(ctx context.Context, sourceBrokerID string, sub *subscription.Subscription, visited map[string]bool) {
	if visited[b.ID] {
		return
	}
	visited[b.ID] = true

	b.mu.Lock()
	if sourceBrokerID != b.ID {
		b.routingTable[sourceBrokerID] = append(b.routingTable[sourceBrokerID], sub)
	}
	neighbors := append([]*Broker(nil), b.neighbors...)
	b.mu.Unlock()

	for _, n := range neighbors {
		if n.ID == sourceBrokerID {
			continue
		}

		b.mu.Lock()
		advertised := b.routingTable[n.ID]
		redundant := false
		for _, existing := range advertised {
			if existing.ID == sub.ID || subscription.Covers(existing, sub) {
				redundant = true
				break
			}
		}
		b.mu.Unlock()

		if redundant {
			continue
		}
		n.Administer(ctx, b.ID, sub, visited)
	}
}

// RoutePublication implements the routing half of Covering Administer
// (spec.md §4.4): process the publication locally, then forward to every
// neighbor whose advertised interest (per routingTable) matches it.
func (b *Broker) RoutePublication(ctx context.Context, pub model.Publication, visited map[string]bool) error {
	if visited[b.ID] {
		return nil
	}
	visited[b.ID] = true

	if err := b.ProcessPublication(ctx, pub); err != nil {
		return err
	}

	b.mu.Lock()
	neighbors := append([]*Broker(nil), b.neighbors...)
	table := make(map[string][]*subscription.Subscription, len(b.routingTable))
	for k, v := range b.routingTable {
		table[k] = v
	}
	b.mu.Unlock()

	for _, n := range neighbors {
		interested := false
		for _, sub := range table[n.ID] {
			if !sub.IsWindowed() && sub.Matches(pub) {
				interested = true
				break
			}
		}
		if !interested {
			continue
		}
		if err := n.RoutePublication(ctx, pub, visited); err != nil {
			return err
		}
	}
	return nil
}
