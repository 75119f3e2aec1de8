// Package schema loads and validates the JSON field-descriptor file
// described in spec.md §6. The generator that produces synthetic
// publications/subscriptions from this schema is an external collaborator
// (spec.md §1) — this package only covers what the broker fabric itself
// needs: validating that every Condition field name is schema-declared (or
// a window-aggregate alias over a numeric field).
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/adred-codev/pubsub-fabric/internal/model"
)

// FieldDescriptor mirrors one entry of the schema JSON array.
type FieldDescriptor struct {
	Name    string          `json:"name"`
	Type    model.FieldType `json:"type"`
	Min     json.RawMessage `json:"min,omitempty"` // number, or ISO-date string for date fields
	Max     json.RawMessage `json:"max,omitempty"`
	Choices []string        `json:"choices,omitempty"`
	Format  string          `json:"format,omitempty"`
}

// Schema is the validated, loaded set of field descriptors, indexed by
// field name for O(1) Condition validation.
type Schema struct {
	Fields []FieldDescriptor
	byName map[string]FieldDescriptor
}

// Load reads and validates a schema file. An invalid schema is a fatal
// configuration error (spec.md §7 ConfigInvalid) — no brokers start.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates schema JSON already read into memory.
func Parse(data []byte) (*Schema, error) {
	var fields []FieldDescriptor
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("schema: invalid JSON: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema: must declare at least one field")
	}

	byName := make(map[string]FieldDescriptor, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema: field missing name")
		}
		if _, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		if err := validateField(f); err != nil {
			return nil, fmt.Errorf("schema: field %q: %w", f.Name, err)
		}
		byName[f.Name] = f
	}

	return &Schema{Fields: fields, byName: byName}, nil
}

func validateField(f FieldDescriptor) error {
	switch f.Type {
	case model.FieldInt, model.FieldFloat:
		if len(f.Min) == 0 || len(f.Max) == 0 {
			return fmt.Errorf("int/float fields require min and max")
		}
		var minNum, maxNum json.Number
		if err := json.Unmarshal(f.Min, &minNum); err != nil {
			return fmt.Errorf("invalid min: %w", err)
		}
		if err := json.Unmarshal(f.Max, &maxNum); err != nil {
			return fmt.Errorf("invalid max: %w", err)
		}
		min, err := minNum.Float64()
		if err != nil {
			return fmt.Errorf("invalid min: %w", err)
		}
		max, err := maxNum.Float64()
		if err != nil {
			return fmt.Errorf("invalid max: %w", err)
		}
		if min > max {
			return fmt.Errorf("min (%v) must be <= max (%v)", min, max)
		}
	case model.FieldString:
		if len(f.Choices) == 0 {
			return fmt.Errorf("string fields require non-empty choices")
		}
	case model.FieldDate:
		if f.Format == "" {
			return fmt.Errorf("date fields require a format")
		}
		if len(f.Min) == 0 || len(f.Max) == 0 {
			return fmt.Errorf("date fields require min and max")
		}
	default:
		return fmt.Errorf("unknown type %q", f.Type)
	}
	return nil
}

// Field looks up a declared field by name.
func (s *Schema) Field(name string) (FieldDescriptor, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// ValidateConditionField reports whether a Condition's field name is
// acceptable: either schema-declared directly, or a window-aggregate
// alias ({avg|min|max}_<base>) over a numeric base field (spec.md §3
// invariants).
func (s *Schema) ValidateConditionField(name string) error {
	if _, ok := s.byName[name]; ok {
		return nil
	}
	for _, prefix := range []string{"avg_", "min_", "max_"} {
		if strings.HasPrefix(name, prefix) {
			base := name[len(prefix):]
			bf, ok := s.byName[base]
			if !ok {
				return fmt.Errorf("aggregate alias %q references undeclared field %q", name, base)
			}
			if bf.Type != model.FieldInt && bf.Type != model.FieldFloat {
				return fmt.Errorf("aggregate alias %q references non-numeric field %q", name, base)
			}
			return nil
		}
	}
	return fmt.Errorf("condition field %q is not declared in the schema", name)
}
