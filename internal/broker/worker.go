package broker

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pubsub-fabric/internal/logging"
)

// Start runs recover() to rehydrate durable state, then launches the
// worker goroutine that drains the inbound queue. Start is not safe to
// call twice on the same Broker without an intervening Stop.
func (b *Broker) Start(ctx context.Context) error {
	if err := b.recover(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.runMu.Lock()
	b.cancel = cancel
	b.running = true
	b.done = make(chan struct{})
	b.runMu.Unlock()

	logging.Event(b.logger, logging.EventBrokerStarted).
		Str("broker_id", b.ID).
		Msg("broker started")

	go b.workerLoop(runCtx)
	return nil
}

// Stop signals the worker to exit and blocks until it has (spec.md §5:
// "stop() sets a running flag false and joins the worker; the worker
// observes the flag at its next queue-wait boundary (≤ 1s)").
func (b *Broker) Stop() {
	b.runMu.Lock()
	if !b.running {
		b.runMu.Unlock()
		return
	}
	cancel := b.cancel
	done := b.done
	b.runMu.Unlock()

	cancel()
	<-done

	logging.Event(b.logger, logging.EventBrokerStopped).
		Str("broker_id", b.ID).
		Msg("broker stopped")
}

// workerLoop repeatedly pulls one publication with a bounded wait and
// processes it. Any unhandled fault (including the CrashField poison
// pill) is recovered, logged as broker_process_loop_crash, and ends the
// loop — the Network's health checker is responsible for restarting this
// broker id (spec.md §4.3, §7 WorkerFault).
func (b *Broker) workerLoop(ctx context.Context) {
	defer func() {
		b.runMu.Lock()
		b.running = false
		close(b.done)
		b.runMu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			b.recorder.IncCrash(b.ID)
			logging.EventAt(b.logger, zerolog.ErrorLevel, logging.EventBrokerCrash).
				Str("broker_id", b.ID).
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("broker worker loop crashed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pub, ok := b.queue.pop(queueWait)
		if !ok {
			continue // QueueEmptyWait: normal, loop continues
		}

		if err := b.ProcessPublication(ctx, pub); err != nil {
			logging.EventAt(b.logger, zerolog.ErrorLevel, "broker_store_error").
				Str("broker_id", b.ID).
				Str("publication_id", pub.ID).
				Err(err).
				Msg("durable store operation failed while processing publication")
		}
	}
}

// recover reconstructs in-memory state from the durable store on start
// (spec.md §4.3): subscriptions first (resolving subscriber references via
// the process-local registry), then re-enqueues every publication still
// marked unprocessed for this broker.
func (b *Broker) recover(ctx context.Context) error {
	subs, err := b.store.LoadSubscriptions(ctx, b.ID)
	if err != nil {
		return err
	}

	logging.Event(b.logger, logging.EventBrokerRecovering).
		Str("broker_id", b.ID).
		Int("subscription_count", len(subs)).
		Msg("broker recovering state")

	b.mu.Lock()
	for _, sub := range subs {
		b.subscriptions[sub.ID] = sub
	}
	count := len(b.subscriptions)
	b.mu.Unlock()
	b.recorder.SetSubscriptionCount(b.ID, count)

	for _, sub := range subs {
		if subr, ok := b.registry.Lookup(sub.SubscriberID); ok {
			subr.Own(sub)
		}
	}

	ids, err := b.store.UnprocessedIDs(ctx, b.ID)
	if err != nil {
		return err
	}

	reenqueued := 0
	for _, id := range ids {
		pub, err := b.store.LoadPublication(ctx, id)
		if err != nil {
			// The publication body may have expired (TTL) independently of
			// the unprocessed marker; skip rather than fail recovery.
			continue
		}
		b.queue.push(pub)
		reenqueued++
	}

	logging.Event(b.logger, logging.EventBrokerRecoveryComplete).
		Str("broker_id", b.ID).
		Int("subscription_count", len(subs)).
		Int("reenqueued_publications", reenqueued).
		Msg("broker recovery complete")

	return nil
}
