// Package model defines the schema-conformant data types that flow through
// the broker fabric: fields, scalar values, conditions and publications.
package model

import (
	"fmt"
	"time"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldString FieldType = "string"
	FieldDate   FieldType = "date"
)

// Value is a tagged union over the four scalar types a Condition or
// Publication field can hold. Using a concrete struct instead of
// interface{} keeps comparisons in the matcher free of type assertions.
type Value struct {
	Kind  FieldType
	Int   int64
	Float float64
	Str   string
	Time  time.Time
}

func IntValue(v int64) Value      { return Value{Kind: FieldInt, Int: v} }
func FloatValue(v float64) Value  { return Value{Kind: FieldFloat, Float: v} }
func StringValue(v string) Value  { return Value{Kind: FieldString, Str: v} }
func TimeValue(v time.Time) Value { return Value{Kind: FieldDate, Time: v} }

// Numeric reports whether the value participates in numeric ordering
// (int and float are comparable to each other; string and date are not).
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case FieldInt:
		return float64(v.Int), true
	case FieldFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// Compare returns -1/0/1 ordering v against other, and false if the pair
// is not comparable (mixed types other than int/float, or unordered kinds
// compared with an ordering operator). Equality (=, !=) is always defined
// across matching kinds.
func (v Value) Compare(other Value) (int, bool) {
	if vf, ok := v.Numeric(); ok {
		if of, ok := other.Numeric(); ok {
			switch {
			case vf < of:
				return -1, true
			case vf > of:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	if v.Kind != other.Kind {
		return 0, false
	}

	switch v.Kind {
	case FieldString:
		switch {
		case v.Str < other.Str:
			return -1, true
		case v.Str > other.Str:
			return 1, true
		default:
			return 0, true
		}
	case FieldDate:
		switch {
		case v.Time.Before(other.Time):
			return -1, true
		case v.Time.After(other.Time):
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

// Equal reports scalar equality; unlike Compare it is defined for every
// kind pairing (mismatched kinds are simply unequal, never an error).
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		// int/float cross-kind equality still uses numeric comparison.
		if vf, ok := v.Numeric(); ok {
			if of, ok := other.Numeric(); ok {
				return vf == of
			}
		}
		return false
	}
	switch v.Kind {
	case FieldInt:
		return v.Int == other.Int
	case FieldFloat:
		return v.Float == other.Float
	case FieldString:
		return v.Str == other.Str
	case FieldDate:
		return v.Time.Equal(other.Time)
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case FieldInt:
		return fmt.Sprintf("%d", v.Int)
	case FieldFloat:
		return fmt.Sprintf("%g", v.Float)
	case FieldString:
		return v.Str
	case FieldDate:
		return v.Time.Format(time.RFC3339)
	default:
		return "<invalid>"
	}
}
