// Package network implements the Broker Network supervisor (spec.md §4.5):
// a fixed set of broker ids, round-robin subscription placement, fan-out
// publish, and a health checker that restarts dead brokers. Modeled on the
// teacher's multi.LoadBalancer/Shard supervision shape (internal/multi/
// loadbalancer.go, shard.go) translated from WebSocket shards to broker
// nodes, and on monitoring.SystemMonitor (internal/shared/monitoring/
// system_monitor.go) for the health checker's periodic-tick structure.
package network

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/time/rate"

	"github.com/adred-codev/pubsub-fabric/internal/broker"
	"github.com/adred-codev/pubsub-fabric/internal/logging"
	"github.com/adred-codev/pubsub-fabric/internal/model"
	"github.com/adred-codev/pubsub-fabric/internal/schema"
	"github.com/adred-codev/pubsub-fabric/internal/store"
	"github.com/adred-codev/pubsub-fabric/internal/subscriber"
	"github.com/adred-codev/pubsub-fabric/internal/subscription"
)

// Config configures a Network.
type Config struct {
	BrokerCount      int
	DefaultWindow    int
	HealthCheckEvery time.Duration
	PublishRate      float64 // sustained publications/sec accepted by Publish
	PublishBurst     int
}

// Network supervises a fixed set of Broker nodes identified by
// broker_0..broker_{k-1} (spec.md §4.5). Broker instances are replaced, not
// mutated, on restart — the id is the only thing that survives.
type Network struct {
	cfg      Config
	store    store.Store
	registry *subscriber.Registry
	logger   zerolog.Logger
	recorder broker.Recorder
	schema   *schema.Schema

	brokerIDs []string
	limiter   *rate.Limiter

	mu      sync.Mutex
	brokers map[string]*broker.Broker
	cursor  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Network with k fixed broker ids. sch may be nil, in
// which case AddSubscription skips schema validation (used by tests that
// don't exercise it). It does not start any broker — call Start.
func New(cfg Config, st store.Store, registry *subscriber.Registry, logger zerolog.Logger, recorder broker.Recorder, sch *schema.Schema) *Network {
	if cfg.HealthCheckEvery <= 0 {
		cfg.HealthCheckEvery = 5 * time.Second
	}
	if cfg.PublishRate <= 0 {
		cfg.PublishRate = 500
	}
	if cfg.PublishBurst <= 0 {
		cfg.PublishBurst = 50
	}

	ids := make([]string, cfg.BrokerCount)
	for i := range ids {
		ids[i] = fmt.Sprintf("broker_%d", i)
	}

	n := &Network{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		logger:    logger,
		recorder:  recorder,
		schema:    sch,
		brokerIDs: ids,
		limiter:   rate.NewLimiter(rate.Limit(cfg.PublishRate), cfg.PublishBurst),
		brokers:   make(map[string]*broker.Broker, cfg.BrokerCount),
	}

	logging.Event(logger, logging.EventNetworkCreated).
		Int("broker_count", cfg.BrokerCount).
		Int("default_window", cfg.DefaultWindow).
		Msg("broker network created")

	return n
}

func (n *Network) newBroker(id string) *broker.Broker {
	return broker.New(id, n.cfg.DefaultWindow, n.store, n.registry, n.logger, n.recorder)
}

// Start creates and starts every expected broker, then spawns the health
// checker goroutine (spec.md §4.5).
func (n *Network) Start(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)

	logging.Event(n.logger, logging.EventNetworkStarting).
		Int("broker_count", len(n.brokerIDs)).
		Msg("broker network starting")

	n.mu.Lock()
	for _, id := range n.brokerIDs {
		b := n.newBroker(id)
		if err := b.Start(n.ctx); err != nil {
			n.mu.Unlock()
			return fmt.Errorf("network: start broker %s: %w", id, err)
		}
		n.brokers[id] = b
	}
	n.mu.Unlock()

	n.wg.Add(1)
	go n.healthCheckLoop()

	return nil
}

// Stop stops the health checker, then every broker in turn (spec.md §4.5).
func (n *Network) Stop() {
	logging.Event(n.logger, logging.EventNetworkStopping).Msg("broker network stopping")

	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	n.mu.Lock()
	brokers := make([]*broker.Broker, 0, len(n.brokers))
	for _, b := range n.brokers {
		brokers = append(brokers, b)
	}
	n.mu.Unlock()

	for _, b := range brokers {
		b.Stop()
	}
}

// healthCheckLoop restarts any broker whose worker is not alive every
// HealthCheckEvery (spec.md §4.5). It also samples this process's RSS via
// gopsutil, following the teacher's collectMetrics pattern (internal/
// single/core/monitoring_collectors.go), and cross-checks it against the
// container's cgroup memory limit (if any) each pass, warning when RSS
// crosses 90% of it.
func (n *Network) healthCheckLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.HealthCheckEvery)
	defer ticker.Stop()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		n.logger.Warn().Err(err).Msg("health checker: failed to attach to self process for telemetry")
		proc = nil
	}

	memLimitBytes, err := cgroupMemoryLimit()
	if err != nil || memLimitBytes == 0 {
		memLimitBytes = 0
	} else {
		n.logger.Debug().Int64("cgroup_memory_limit_bytes", memLimitBytes).Msg("health checker: detected container memory limit")
	}

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.runHealthCheck(proc, memLimitBytes)
		}
	}
}

func (n *Network) runHealthCheck(proc *process.Process, memLimitBytes int64) {
	var memBytes uint64
	if proc != nil {
		if info, err := proc.MemoryInfo(); err == nil {
			memBytes = info.RSS
		}
	}
	memMB := float64(memBytes) / 1024 / 1024

	if memLimitBytes > 0 && memBytes > uint64(memLimitBytes)*9/10 {
		n.logger.Warn().
			Float64("process_memory_mb", memMB).
			Int64("cgroup_memory_limit_bytes", memLimitBytes).
			Msg("health checker: process memory approaching container limit")
	}

	restarted := 0
	for _, id := range n.brokerIDs {
		n.mu.Lock()
		b, ok := n.brokers[id]
		alive := ok && b.IsAlive()
		n.mu.Unlock()

		if alive {
			continue
		}

		fresh := n.newBroker(id)
		if err := fresh.Start(n.ctx); err != nil {
			logging.EventAt(n.logger, zerolog.ErrorLevel, logging.EventBrokerFailed).
				Str("broker_id", id).
				Err(err).
				Msg("health checker: failed to restart broker")
			continue
		}

		n.mu.Lock()
		n.brokers[id] = fresh
		n.mu.Unlock()
		restarted++

		logging.Event(n.logger, logging.EventBrokerStarted).
			Str("broker_id", id).
			Msg("health checker restarted dead broker")
	}

	n.logger.Debug().
		Int("restarted", restarted).
		Float64("process_memory_mb", memMB).
		Msg("health check pass complete")
}

// AddSubscription places sub on the next broker in round-robin order
// (spec.md §4.5, §8 "Round-robin fairness"). If the assigned broker is not
// currently live, sub is persisted directly to the durable store under
// that broker's key so recovery picks it up, matching the spec's explicit
// fallback.
func (n *Network) AddSubscription(ctx context.Context, sub *subscription.Subscription) (string, error) {
	if n.schema != nil {
		for _, c := range sub.Conditions {
			if err := n.schema.ValidateConditionField(c.Field); err != nil {
				return "", fmt.Errorf("network: subscription %s: %w", sub.ID, err)
			}
		}
	}

	n.mu.Lock()
	id := n.brokerIDs[n.cursor%len(n.brokerIDs)]
	n.cursor++
	b, ok := n.brokers[id]
	n.mu.Unlock()

	if sr, found := n.registry.Lookup(sub.SubscriberID); found {
		sr.Own(sub)
	}

	if ok && b.IsAlive() {
		return b.AddSubscription(ctx, sub)
	}

	logging.Event(n.logger, logging.EventSubscriptionToRedis).
		Str("broker_id", id).
		Str("subscription_id", sub.ID).
		Msg("assigned broker not live, persisting subscription for recovery")

	if err := n.store.SaveSubscription(ctx, id, sub); err != nil {
		return "", fmt.Errorf("network: persist subscription %s for dead broker %s: %w", sub.ID, id, err)
	}
	return sub.ID, nil
}

// Publish stamps pub with an id/timestamp if missing, durably records it as
// unprocessed for every expected broker in a single atomic step, then
// enqueues it on every currently live broker (spec.md §4.5). Ingestion is
// paced by a token-bucket limiter — the systems-level reading of §5's
// "Operators are expected to pace via the publisher" — blocking until a
// token is available or ctx is cancelled.
func (n *Network) Publish(ctx context.Context, pub model.Publication) error {
	pub = model.NewPublication(pub.ID, pub.Timestamp, pub.Fields)

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("network: publish rate limiter: %w", err)
	}

	if err := n.store.SavePublication(ctx, pub, n.brokerIDs); err != nil {
		return fmt.Errorf("network: persist publication %s: %w", pub.ID, err)
	}

	logging.Event(n.logger, logging.EventPublicationLogged).
		Str("publication_id", pub.ID).
		Msg("publication logged to store")

	n.mu.Lock()
	live := make([]*broker.Broker, 0, len(n.brokers))
	for _, b := range n.brokers {
		if b.IsAlive() {
			live = append(live, b)
		}
	}
	n.mu.Unlock()

	for _, b := range live {
		b.Publish(pub)
	}
	return nil
}

// BrokerIDs returns the fixed, stable list of expected broker ids.
func (n *Network) BrokerIDs() []string {
	out := make([]string, len(n.brokerIDs))
	copy(out, n.brokerIDs)
	return out
}

// Stats returns a point-in-time snapshot of every currently tracked broker.
func (n *Network) Stats() []broker.Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]broker.Stats, 0, len(n.brokers))
	for _, id := range n.brokerIDs {
		if b, ok := n.brokers[id]; ok {
			out = append(out, b.Stats())
		}
	}
	return out
}
