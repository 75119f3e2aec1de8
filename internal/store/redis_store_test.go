package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/store"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

func newTestStore(t *testing.T) *store.RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return store.NewRedisStore(client, time.Hour)
}

func TestSaveAndLoadSubscriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := subscription.New([]model.Condition{
		{Field: "temp", Op: model.OpGe, Value: model.IntValue(10)},
	}, 0, "subscriber-1")

	if err := s.SaveSubscription(ctx, "broker_0", sub); err != nil {
		t.Fatalf("save subscription: %v", err)
	}

	loaded, err := s.LoadSubscriptions(ctx, "broker_0")
	if err != nil {
		t.Fatalf("load subscriptions: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(loaded))
	}
	if loaded[0].ID != sub.ID {
		t.Fatalf("id mismatch: got %q want %q", loaded[0].ID, sub.ID)
	}
}

func TestDeleteSubscriptionRemovesSnapshotAndBuffer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := subscription.New([]model.Condition{{Field: "x", Op: model.OpEq, Value: model.IntValue(1)}}, 2, "subscriber-1")
	if err := s.SaveSubscription(ctx, "broker_0", sub); err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	pub := model.NewPublication("p1", time.Now(), map[string]model.Value{"x": model.IntValue(1)})
	if err := s.SaveWindowBuffer(ctx, sub.ID, pub); err != nil {
		t.Fatalf("save window buffer: %v", err)
	}

	if err := s.DeleteSubscription(ctx, "broker_0", sub.ID); err != nil {
		t.Fatalf("delete subscription: %v", err)
	}

	loaded, err := s.LoadSubscriptions(ctx, "broker_0")
	if err != nil {
		t.Fatalf("load subscriptions: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected subscription to be gone, got %d", len(loaded))
	}
}

func TestSavePublicationMarksUnprocessedForEveryBroker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pub := model.NewPublication("p1", time.Now(), map[string]model.Value{"temp": model.IntValue(12)})
	brokers := []string{"broker_0", "broker_1", "broker_2"}

	if err := s.SavePublication(ctx, pub, brokers); err != nil {
		t.Fatalf("save publication: %v", err)
	}

	for _, b := range brokers {
		ids, err := s.UnprocessedIDs(ctx, b)
		if err != nil {
			t.Fatalf("unprocessed ids for %s: %v", b, err)
		}
		if len(ids) != 1 || ids[0] != "p1" {
			t.Fatalf("expected %s to have p1 unprocessed, got %v", b, ids)
		}
	}

	loaded, err := s.LoadPublication(ctx, "p1")
	if err != nil {
		t.Fatalf("load publication: %v", err)
	}
	if loaded.ID != "p1" {
		t.Fatalf("id mismatch: got %q", loaded.ID)
	}
}

func TestMarkProcessedRemovesFromUnprocessedSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pub := model.NewPublication("p1", time.Now(), map[string]model.Value{})
	if err := s.SavePublication(ctx, pub, []string{"broker_0"}); err != nil {
		t.Fatalf("save publication: %v", err)
	}

	if err := s.MarkProcessed(ctx, "broker_0", "p1"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	ids, err := s.UnprocessedIDs(ctx, "broker_0")
	if err != nil {
		t.Fatalf("unprocessed ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no unprocessed ids after mark, got %v", ids)
	}
}

func TestClearWindowBuffer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pub := model.NewPublication("p1", time.Now(), map[string]model.Value{})
	if err := s.SaveWindowBuffer(ctx, "sub1", pub); err != nil {
		t.Fatalf("save window buffer: %v", err)
	}
	if err := s.ClearWindowBuffer(ctx, "sub1"); err != nil {
		t.Fatalf("clear window buffer: %v", err)
	}
}
