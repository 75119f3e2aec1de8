// Package codec implements the wire serialization for Publications
// (spec.md §6: "Round-trippable byte encoding (encode/decode) satisfying
// decode(encode(p)) = p"). JSON is chosen deliberately — it's also the
// encoding the durable store already uses for subscriptions and
// publication bodies (original_source/core/broker_network.py calls
// json.dumps on both), so the wire form and the store form share one
// encoder instead of introducing a second, unrelated serialization
// library nothing else in the stack needs.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adred-codev/pubsub-fabric/internal/model"
)

// wireValue is the JSON-friendly projection of model.Value.
type wireValue struct {
	Kind  model.FieldType `json:"kind"`
	Int   int64           `json:"int,omitempty"`
	Float float64         `json:"float,omitempty"`
	Str   string          `json:"str,omitempty"`
	Time  *time.Time      `json:"time,omitempty"`
}

type wirePublication struct {
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Fields    map[string]wireValue `json:"fields"`
}

func toWireValue(v model.Value) wireValue {
	w := wireValue{Kind: v.Kind}
	switch v.Kind {
	case model.FieldInt:
		w.Int = v.Int
	case model.FieldFloat:
		w.Float = v.Float
	case model.FieldString:
		w.Str = v.Str
	case model.FieldDate:
		t := v.Time
		w.Time = &t
	}
	return w
}

func fromWireValue(w wireValue) (model.Value, error) {
	switch w.Kind {
	case model.FieldInt:
		return model.IntValue(w.Int), nil
	case model.FieldFloat:
		return model.FloatValue(w.Float), nil
	case model.FieldString:
		return model.StringValue(w.Str), nil
	case model.FieldDate:
		if w.Time == nil {
			return model.Value{}, fmt.Errorf("codec: date value missing time")
		}
		return model.TimeValue(*w.Time), nil
	default:
		return model.Value{}, fmt.Errorf("codec: unknown value kind %q", w.Kind)
	}
}

// Encode serializes a Publication to its wire byte form.
func Encode(pub model.Publication) ([]byte, error) {
	wp := wirePublication{
		ID:        pub.ID,
		Timestamp: pub.Timestamp,
		Fields:    make(map[string]wireValue, len(pub.Fields)),
	}
	for k, v := range pub.Fields {
		wp.Fields[k] = toWireValue(v)
	}
	data, err := json.Marshal(wp)
	if err != nil {
		return nil, fmt.Errorf("codec: encode publication %s: %w", pub.ID, err)
	}
	return data, nil
}

// Decode deserializes a Publication from its wire byte form. Decode(Encode(p))
// reproduces p field-for-field (spec.md §8 "Round-trip" property).
func Decode(data []byte) (model.Publication, error) {
	var wp wirePublication
	if err := json.Unmarshal(data, &wp); err != nil {
		return model.Publication{}, fmt.Errorf("codec: decode publication: %w", err)
	}
	fields := make(map[string]model.Value, len(wp.Fields))
	for k, wv := range wp.Fields {
		v, err := fromWireValue(wv)
		if err != nil {
			return model.Publication{}, fmt.Errorf("codec: field %q: %w", k, err)
		}
		fields[k] = v
	}
	return model.Publication{ID: wp.ID, Timestamp: wp.Timestamp, Fields: fields}, nil
}
