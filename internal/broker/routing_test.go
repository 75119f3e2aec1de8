package broker

import (
	"context"
	"testing"
	"time"

	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/subscriber"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

// Scenario 4 (spec.md §8): a triangle topology b0-b1-b2-b0. Administering a
// subscription at b0 must reach b1 and b2 exactly once each via the visited
// set, and must not loop back into b0's own routing table under its own id.
func TestAdministerTriangleLoopSuppression(t *testing.T) {
	b0, _ := newTestBroker(t)
	b1, _ := newTestBroker(t)
	b2, _ := newTestBroker(t)
	b1.ID, b2.ID = "broker_1", "broker_2"

	b0.AddNeighbor(b1)
	b1.AddNeighbor(b0)
	b1.AddNeighbor(b2)
	b2.AddNeighbor(b1)
	b2.AddNeighbor(b0)
	b0.AddNeighbor(b2)

	sub := subscription.New([]model.Condition{
		{Field: "temp", Op: model.OpGe, Value: model.IntValue(10)},
	}, 0, "sub-1")

	ctx := context.Background()
	b0.Administer(ctx, b0.ID, sub, map[string]bool{})

	b1.mu.Lock()
	n1 := len(b1.routingTable[b0.ID])
	b1.mu.Unlock()
	if n1 != 1 {
		t.Fatalf("expected broker_1 to have received the subscription exactly once, got %d", n1)
	}

	// The flood is depth-first: b1 forwards to b2 before b0 reaches its own
	// b2 link, so b2 records the subscription under b1's id, and b0's later
	// call is suppressed by the visited set. Count across every source.
	b2.mu.Lock()
	n2 := 0
	for _, subs := range b2.routingTable {
		n2 += len(subs)
	}
	b2.mu.Unlock()
	if n2 != 1 {
		t.Fatalf("expected broker_2 to have received the subscription exactly once, got %d", n2)
	}

	b0.mu.Lock()
	selfEntries := len(b0.routingTable[b0.ID])
	b0.mu.Unlock()
	if selfEntries != 0 {
		t.Fatalf("expected broker_0 to not list itself as a source, got %d entries", selfEntries)
	}
}

// RoutePublication must visit every broker in the triangle at most once
// (via the shared visited set) and deliver to the subscriber owned by the
// broker that originally added the subscription.
func TestRoutePublicationVisitsEachBrokerOnce(t *testing.T) {
	b0, r0 := newTestBroker(t)
	b1, _ := newTestBroker(t)
	b2, _ := newTestBroker(t)
	b1.ID, b2.ID = "broker_1", "broker_2"

	b0.AddNeighbor(b1)
	b1.AddNeighbor(b0)
	b1.AddNeighbor(b2)
	b2.AddNeighbor(b1)
	b2.AddNeighbor(b0)
	b0.AddNeighbor(b2)

	ctx := context.Background()
	sub := subscription.New([]model.Condition{
		{Field: "temp", Op: model.OpGe, Value: model.IntValue(10)},
	}, 0, "sub-1")
	if _, err := b0.AddSubscription(ctx, sub); err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	s := subscriber.New("sub-1", nil)
	s.Own(sub)
	r0.Register(s)

	b0.Administer(ctx, b0.ID, sub, map[string]bool{})

	visited := map[string]bool{}
	pub := model.NewPublication("p1", time.Now(), map[string]model.Value{"temp": model.IntValue(20)})
	if err := b0.RoutePublication(ctx, pub, visited); err != nil {
		t.Fatalf("route publication: %v", err)
	}

	if !visited[b0.ID] {
		t.Fatal("expected b0 to be marked visited")
	}
	if len(s.ReceivedMessages()) != 1 {
		t.Fatalf("expected the owning subscriber to receive exactly once, got %d", len(s.ReceivedMessages()))
	}
}
