package model

import (
	"time"

	"github.com/google/uuid"
)

// Publication is a single schema-conformant record circulating through the
// fabric: an id, a timestamp, and one Value per schema field.
type Publication struct {
	ID        string
	Timestamp time.Time
	Fields    map[string]Value
}

// NewPublication stamps an id and timestamp if either is missing, matching
// spec.md §4.5's "Assign pub.id (UUID) and timestamp if missing" rule.
func NewPublication(id string, ts time.Time, fields map[string]Value) Publication {
	if id == "" {
		id = uuid.NewString()
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if fields == nil {
		fields = map[string]Value{}
	}
	return Publication{ID: id, Timestamp: ts, Fields: fields}
}

// Get returns the named field and whether it was present.
func (p Publication) Get(field string) (Value, bool) {
	v, ok := p.Fields[field]
	return v, ok
}

// Operator is a tagged variant over the comparison operators a Condition
// may use. Conditions are never represented as opaque callables (spec.md
// §9) because they must be inspectable for the covering relation and
// reconstructable after recovery.
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "!="
	OpLt Operator = "<"
	OpLe Operator = "<="
	OpGt Operator = ">"
	OpGe Operator = ">="
)

// Condition is one (field, operator, value) triple. A Subscription is the
// logical AND of its Conditions.
type Condition struct {
	Field string
	Op    Operator
	Value Value
}

// Eval evaluates the condition against a single scalar value. Missing
// fields are handled by the caller (subscription.Subscription.Matches) —
// this method assumes the field was already resolved.
func (c Condition) Eval(pubValue Value) bool {
	switch c.Op {
	case OpEq:
		return pubValue.Equal(c.Value)
	case OpNe:
		return !pubValue.Equal(c.Value)
	case OpLt, OpLe, OpGt, OpGe:
		cmp, ok := pubValue.Compare(c.Value)
		if !ok {
			// MatchTypeMismatch: silently non-match, never an error.
			return false
		}
		switch c.Op {
		case OpLt:
			return cmp < 0
		case OpLe:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		case OpGe:
			return cmp >= 0
		}
	}
	return false
}
