// Package subscription implements the matching engine: conjunctive
// predicates over publication fields, tumbling-window aggregates, and the
// covering relation used to prune redundant subscription forwarding.
package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adred-codev/pubsub-fabric/internal/model"
)

// aggPrefix is one of the three window-aggregate alias prefixes.
type aggPrefix string

const (
	aggAvg aggPrefix = "avg"
	aggMin aggPrefix = "min"
	aggMax aggPrefix = "max"
)

// splitAlias splits a field name like "avg_temp" into its prefix and base
// field, returning ok=false for plain (non-aggregate) field names.
func splitAlias(field string) (aggPrefix, string, bool) {
	for _, p := range []aggPrefix{aggAvg, aggMin, aggMax} {
		prefix := string(p) + "_"
		if strings.HasPrefix(field, prefix) && len(field) > len(prefix) {
			return p, field[len(prefix):], true
		}
	}
	return "", "", false
}

// Subscription is a conjunction of Conditions over a Publication, with an
// optional tumbling window. The buffer is owned exclusively by the broker
// holding the subscription — no external party mutates it (spec.md §4.2).
type Subscription struct {
	ID           string
	Conditions   []model.Condition
	WindowSize   int // 0 means simple (non-windowed)
	SubscriberID string

	buffer []model.Publication
}

// New creates a Subscription with a fresh id. windowSize of 0 means a
// simple (non-windowed) subscription.
func New(conditions []model.Condition, windowSize int, subscriberID string) *Subscription {
	return &Subscription{
		ID:           uuid.NewString(),
		Conditions:   conditions,
		WindowSize:   windowSize,
		SubscriberID: subscriberID,
	}
}

// IsWindowed reports whether this subscription buffers over a tumbling
// window rather than matching each publication immediately.
func (s *Subscription) IsWindowed() bool { return s.WindowSize > 0 }

// BufferLen returns the current window buffer length (0 for simple
// subscriptions). Exposed for tests and metrics, never mutated by callers.
func (s *Subscription) BufferLen() int { return len(s.buffer) }

// Matches evaluates a simple (non-windowed) subscription against a single
// publication. Every Condition must hold (logical AND); a missing field is
// a non-match, never an error (spec.md §4.1, §7 MatchFieldMissing).
//
// Matches never mutates subscription state — repeated calls are idempotent
// (spec.md §8 "Idempotent non-match").
func (s *Subscription) Matches(pub model.Publication) bool {
	for _, cond := range s.Conditions {
		if _, isAgg, _ := aggAliasOf(cond.Field); isAgg {
			// Aggregate conditions only ever fire at window-evaluation time;
			// outside a window they can never be satisfied by a single pub.
			return false
		}
		fieldValue, ok := pub.Get(cond.Field)
		if !ok {
			return false
		}
		if !cond.Eval(fieldValue) {
			return false
		}
	}
	return true
}

func aggAliasOf(field string) (aggPrefix, bool, string) {
	prefix, base, ok := splitAlias(field)
	return prefix, ok, base
}

// Push appends a publication to the window buffer. Callers must check
// IsWindowed first; Push on a simple subscription is a no-op guard.
func (s *Subscription) Push(pub model.Publication) {
	if !s.IsWindowed() {
		return
	}
	s.buffer = append(s.buffer, pub)
}

// Ready reports whether the buffer has accumulated a full window.
func (s *Subscription) Ready() bool {
	return s.IsWindowed() && len(s.buffer) >= s.WindowSize
}

// ProcessWindow evaluates the accumulated tumbling window. It always
// clears the buffer before returning (spec.md §8 "Tumbling boundary":
// buffer length is 0 after evaluation regardless of outcome), and returns
// the derived meta-publication plus true only when every aggregate
// Condition holds.
//
// Per the Open Question in spec.md §8/§9, this implementation fixes the
// rule that non-aggregate conditions inside a windowed subscription are
// never evaluated at window-fire time — only aliased fields
// (avg_/min_/max_<base>) participate, matching original_source/core/
// subscription.py's process_window exactly. Conditions use the buffered
// window's aggregate; there is no "last record" fallback because the
// source never reaches for one.
func (s *Subscription) ProcessWindow() (model.Publication, bool) {
	defer func() { s.buffer = nil }()

	if len(s.buffer) < s.WindowSize {
		return model.Publication{}, false
	}

	aggregates := map[string]model.Value{}
	for _, cond := range s.Conditions {
		prefix, base, ok := splitAlias(cond.Field)
		if !ok {
			continue
		}
		if _, already := aggregates[cond.Field]; already {
			continue
		}
		values := collectNumeric(s.buffer, base)
		if len(values) == 0 {
			return model.Publication{}, false
		}
		aggregates[cond.Field] = computeAggregate(prefix, values)
	}

	for _, cond := range s.Conditions {
		_, _, ok := splitAlias(cond.Field)
		if !ok {
			continue // non-aggregate conditions are never evaluated here
		}
		aggValue, ok := aggregates[cond.Field]
		if !ok {
			return model.Publication{}, false
		}
		if !cond.Eval(aggValue) {
			return model.Publication{}, false
		}
	}

	meta := model.NewPublication(
		fmt.Sprintf("meta_%s_%d", s.ID, time.Now().UnixMilli()),
		time.Now().UTC(),
		aggregates,
	)
	return meta, true
}

func collectNumeric(pubs []model.Publication, base string) []float64 {
	var values []float64
	for _, pub := range pubs {
		v, ok := pub.Get(base)
		if !ok {
			continue
		}
		if f, ok := v.Numeric(); ok {
			values = append(values, f)
		}
	}
	return values
}

func computeAggregate(prefix aggPrefix, values []float64) model.Value {
	switch prefix {
	case aggAvg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return model.FloatValue(sum / float64(len(values)))
	case aggMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return model.FloatValue(m)
	case aggMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return model.FloatValue(m)
	default:
		return model.Value{}
	}
}
