package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adred-codev/pubsub-fabric/internal/codec"
	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

// RedisStore is the production Store backed by a Redis (or Redis-wire
// compatible) server.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing *redis.Client. addr/db plumbing lives in
// internal/config; callers construct the client and hand it here so tests
// can point the same type at a miniredis instance.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func subscriptionsKey(brokerID string) string   { return fmt.Sprintf("subscriptions:%s", brokerID) }
func publicationKey(pubID string) string        { return fmt.Sprintf("publication:%s", pubID) }
func unprocessedKey(brokerID string) string      { return fmt.Sprintf("unprocessed_pubs:%s", brokerID) }
func windowBufferKey(subscriptionID string) string { return fmt.Sprintf("window_buffer:%s", subscriptionID) }

func (s *RedisStore) SaveSubscription(ctx context.Context, brokerID string, sub *subscription.Subscription) error {
	data, err := json.Marshal(sub.ToDict())
	if err != nil {
		return fmt.Errorf("store: marshal subscription %s: %w", sub.ID, err)
	}
	key := subscriptionsKey(brokerID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, sub.ID, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: save subscription %s: %w", sub.ID, err)
	}
	return nil
}

func (s *RedisStore) LoadSubscriptions(ctx context.Context, brokerID string) ([]*subscription.Subscription, error) {
	raw, err := s.client.HGetAll(ctx, subscriptionsKey(brokerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: load subscriptions for %s: %w", brokerID, err)
	}
	subs := make([]*subscription.Subscription, 0, len(raw))
	for id, data := range raw {
		var d map[string]any
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("store: unmarshal subscription %s: %w", id, err)
		}
		sub, err := subscription.FromDict(d)
		if err != nil {
			return nil, fmt.Errorf("store: reconstruct subscription %s: %w", id, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *RedisStore) DeleteSubscription(ctx context.Context, brokerID, subscriptionID string) error {
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, subscriptionsKey(brokerID), subscriptionID)
	pipe.Del(ctx, windowBufferKey(subscriptionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: delete subscription %s: %w", subscriptionID, err)
	}
	return nil
}

func (s *RedisStore) SavePublication(ctx context.Context, pub model.Publication, brokerIDs []string) error {
	data, err := codec.Encode(pub)
	if err != nil {
		return fmt.Errorf("store: encode publication %s: %w", pub.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, publicationKey(pub.ID), data, s.ttl)
	for _, brokerID := range brokerIDs {
		key := unprocessedKey(brokerID)
		pipe.SAdd(ctx, key, pub.ID)
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: save publication %s: %w", pub.ID, err)
	}
	return nil
}

func (s *RedisStore) LoadPublication(ctx context.Context, pubID string) (model.Publication, error) {
	data, err := s.client.Get(ctx, publicationKey(pubID)).Bytes()
	if err != nil {
		return model.Publication{}, fmt.Errorf("store: load publication %s: %w", pubID, err)
	}
	pub, err := codec.Decode(data)
	if err != nil {
		return model.Publication{}, fmt.Errorf("store: decode publication %s: %w", pubID, err)
	}
	return pub, nil
}

func (s *RedisStore) UnprocessedIDs(ctx context.Context, brokerID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, unprocessedKey(brokerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: unprocessed ids for %s: %w", brokerID, err)
	}
	return ids, nil
}

func (s *RedisStore) MarkProcessed(ctx context.Context, brokerID, pubID string) error {
	if err := s.client.SRem(ctx, unprocessedKey(brokerID), pubID).Err(); err != nil {
		return fmt.Errorf("store: mark %s processed for %s: %w", pubID, brokerID, err)
	}
	return nil
}

func (s *RedisStore) SaveWindowBuffer(ctx context.Context, subscriptionID string, pub model.Publication) error {
	data, err := codec.Encode(pub)
	if err != nil {
		return fmt.Errorf("store: encode window publication: %w", err)
	}
	key := windowBufferKey(subscriptionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: save window buffer for %s: %w", subscriptionID, err)
	}
	return nil
}

func (s *RedisStore) ClearWindowBuffer(ctx context.Context, subscriptionID string) error {
	if err := s.client.Del(ctx, windowBufferKey(subscriptionID)).Err(); err != nil {
		return fmt.Errorf("store: clear window buffer for %s: %w", subscriptionID, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
