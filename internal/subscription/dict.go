package subscription

import (
	"fmt"
	"time"

	"github.com/adred-codev/pubsub-fabric/internal/model"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// ToDict renders the subscription in the same shape as
// original_source/core/subscription.py's implicit dict form, used for the
// durable-store round trip (spec.md §6, §8 "Subscription.fromDict(s.toDict())
// ≡ s"). Window buffer contents are never part of the durable snapshot —
// only window_buffer:{subId} (spec.md §6) carries buffered publications,
// written separately by the broker.
func (s *Subscription) ToDict() map[string]any {
	conds := make([]map[string]any, len(s.Conditions))
	for i, c := range s.Conditions {
		conds[i] = map[string]any{
			"field": c.Field,
			"op":    string(c.Op),
			"value": valueToDict(c.Value),
		}
	}
	return map[string]any{
		"id":            s.ID,
		"conditions":    conds,
		"window_size":   s.WindowSize,
		"subscriber_id": s.SubscriberID,
	}
}

// FromDict reconstructs a Subscription from ToDict's output.
func FromDict(d map[string]any) (*Subscription, error) {
	id, _ := d["id"].(string)
	subscriberID, _ := d["subscriber_id"].(string)

	windowSize := 0
	switch v := d["window_size"].(type) {
	case int:
		windowSize = v
	case float64:
		windowSize = int(v)
	}

	rawConds, _ := d["conditions"].([]any)
	conds := make([]model.Condition, 0, len(rawConds))
	for _, rc := range rawConds {
		cm, ok := rc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("subscription: malformed condition entry")
		}
		field, _ := cm["field"].(string)
		op, _ := cm["op"].(string)
		valueMap, _ := cm["value"].(map[string]any)
		value, err := valueFromDict(valueMap)
		if err != nil {
			return nil, fmt.Errorf("subscription: condition %q: %w", field, err)
		}
		conds = append(conds, model.Condition{Field: field, Op: model.Operator(op), Value: value})
	}

	return &Subscription{
		ID:           id,
		Conditions:   conds,
		WindowSize:   windowSize,
		SubscriberID: subscriberID,
	}, nil
}

func valueToDict(v model.Value) map[string]any {
	m := map[string]any{"kind": string(v.Kind)}
	switch v.Kind {
	case model.FieldInt:
		m["int"] = v.Int
	case model.FieldFloat:
		m["float"] = v.Float
	case model.FieldString:
		m["str"] = v.Str
	case model.FieldDate:
		m["time"] = v.Time
	}
	return m
}

func valueFromDict(m map[string]any) (model.Value, error) {
	kind, _ := m["kind"].(string)
	switch model.FieldType(kind) {
	case model.FieldInt:
		switch n := m["int"].(type) {
		case int64:
			return model.IntValue(n), nil
		case float64:
			return model.IntValue(int64(n)), nil
		}
	case model.FieldFloat:
		if f, ok := m["float"].(float64); ok {
			return model.FloatValue(f), nil
		}
	case model.FieldString:
		if s, ok := m["str"].(string); ok {
			return model.StringValue(s), nil
		}
	case model.FieldDate:
		switch t := m["time"].(type) {
		case time.Time:
			// direct in-memory round trip (ToDict -> FromDict, no JSON hop)
			return model.TimeValue(t), nil
		case string:
			// tolerate RFC3339-encoded dates from a JSON round trip
			parsed, err := parseTime(t)
			if err != nil {
				return model.Value{}, err
			}
			return model.TimeValue(parsed), nil
		}
	}
	return model.Value{}, fmt.Errorf("subscription: unrecognized value dict %v", m)
}
