package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/store"
	"github.com/adred-codev/pubsub-fabric/internal/subscriber"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

func newTestBroker(t *testing.T) (*Broker, *subscriber.Registry) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisStore(client, time.Hour)
	registry := subscriber.NewRegistry()
	b := New("broker_0", 0, st, registry, zerolog.Nop(), nil)
	return b, registry
}

func TestStartStopLifecycle(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if b.IsAlive() {
		t.Fatal("expected broker to be not alive before Start")
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if !b.IsAlive() {
		t.Fatal("expected broker to be alive after Start")
	}

	b.Stop()
	if b.IsAlive() {
		t.Fatal("expected broker to be not alive after Stop")
	}
}

func TestProcessPublicationSimpleMatchDeliversToSubscriber(t *testing.T) {
	b, registry := newTestBroker(t)
	ctx := context.Background()

	sub := subscription.New([]model.Condition{
		{Field: "temp", Op: model.OpGe, Value: model.IntValue(10)},
	}, 0, "sub-1")
	if _, err := b.AddSubscription(ctx, sub); err != nil {
		t.Fatalf("add subscription: %v", err)
	}

	s := subscriber.New("sub-1", nil)
	s.Own(sub)
	registry.Register(s)

	pub := model.NewPublication("p1", time.Now(), map[string]model.Value{"temp": model.IntValue(15)})
	if err := b.ProcessPublication(ctx, pub); err != nil {
		t.Fatalf("process publication: %v", err)
	}

	msgs := s.ReceivedMessages()
	if len(msgs) != 1 || msgs[0].ID != "p1" {
		t.Fatalf("expected subscriber to receive p1, got %v", msgs)
	}
}

func TestProcessPublicationNonMatchDoesNotDeliver(t *testing.T) {
	b, registry := newTestBroker(t)
	ctx := context.Background()

	sub := subscription.New([]model.Condition{
		{Field: "temp", Op: model.OpGe, Value: model.IntValue(100)},
	}, 0, "sub-1")
	if _, err := b.AddSubscription(ctx, sub); err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	s := subscriber.New("sub-1", nil)
	registry.Register(s)

	pub := model.NewPublication("p1", time.Now(), map[string]model.Value{"temp": model.IntValue(15)})
	if err := b.ProcessPublication(ctx, pub); err != nil {
		t.Fatalf("process publication: %v", err)
	}
	if len(s.ReceivedMessages()) != 0 {
		t.Fatal("expected no delivery for a non-matching publication")
	}
}

// At-most-once-per-subscriber (spec.md §8 scenario 6): a subscriber with two
// matching subscriptions on the same broker still receives exactly once.
func TestAtMostOncePerSubscriber(t *testing.T) {
	b, registry := newTestBroker(t)
	ctx := context.Background()

	subA := subscription.New([]model.Condition{{Field: "temp", Op: model.OpGe, Value: model.IntValue(0)}}, 0, "sub-1")
	subB := subscription.New([]model.Condition{{Field: "city", Op: model.OpEq, Value: model.StringValue("X")}}, 0, "sub-1")
	if _, err := b.AddSubscription(ctx, subA); err != nil {
		t.Fatalf("add subscription A: %v", err)
	}
	if _, err := b.AddSubscription(ctx, subB); err != nil {
		t.Fatalf("add subscription B: %v", err)
	}

	s := subscriber.New("sub-1", nil)
	registry.Register(s)

	pub := model.NewPublication("p1", time.Now(), map[string]model.Value{
		"temp": model.IntValue(5),
		"city": model.StringValue("X"),
	})
	if err := b.ProcessPublication(ctx, pub); err != nil {
		t.Fatalf("process publication: %v", err)
	}

	if len(s.ReceivedMessages()) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(s.ReceivedMessages()))
	}
}

func TestProcessPublicationWindowMatchFiresOnce(t *testing.T) {
	b, registry := newTestBroker(t)
	ctx := context.Background()

	sub := subscription.New([]model.Condition{
		{Field: "avg_temp", Op: model.OpGe, Value: model.FloatValue(0)},
	}, 3, "sub-1")
	if _, err := b.AddSubscription(ctx, sub); err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	s := subscriber.New("sub-1", nil)
	registry.Register(s)

	readings := []int64{10, 20, 35}
	for _, r := range readings {
		pub := model.NewPublication("", time.Now(), map[string]model.Value{"temp": model.IntValue(r)})
		if err := b.ProcessPublication(ctx, pub); err != nil {
			t.Fatalf("process publication: %v", err)
		}
	}

	msgs := s.ReceivedMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one window-fired delivery, got %d", len(msgs))
	}
}

// CrashField (spec.md §4.3 poison pill) panics inside ProcessPublication;
// workerLoop's recover() must catch it and end the loop without taking the
// process down, leaving IsAlive false for the Network's health checker to
// observe and restart.
func TestWorkerLoopRecoversFromPoisonPill(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	b.Publish(model.NewPublication("poison", time.Now(), map[string]model.Value{CrashField: model.IntValue(1)}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !b.IsAlive() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected worker loop to have crashed and stopped after the poison pill")
}
