package schema

import "testing"

// Scenario 1's schema shape (spec.md §8): city enum + temp int range.
const validSchemaJSON = `[
  {"name":"city","type":"string","choices":["Bucharest","Cluj"]},
  {"name":"temp","type":"int","min":-10,"max":40}
]`

func TestParseValidSchema(t *testing.T) {
	s, err := Parse([]byte(validSchemaJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(s.Fields))
	}
	if _, ok := s.Field("temp"); !ok {
		t.Fatal("expected temp field to be declared")
	}
}

func TestParseRejectsEmptySchema(t *testing.T) {
	if _, err := Parse([]byte(`[]`)); err == nil {
		t.Fatal("expected an error for an empty schema")
	}
}

func TestParseRejectsDuplicateField(t *testing.T) {
	data := `[{"name":"temp","type":"int","min":0,"max":10},{"name":"temp","type":"int","min":0,"max":10}]`
	if _, err := Parse([]byte(data)); err == nil {
		t.Fatal("expected an error for a duplicate field name")
	}
}

func TestParseRejectsIntWithoutMinMax(t *testing.T) {
	if _, err := Parse([]byte(`[{"name":"temp","type":"int"}]`)); err == nil {
		t.Fatal("expected an error: int fields require min/max")
	}
}

func TestParseRejectsInvertedMinMax(t *testing.T) {
	if _, err := Parse([]byte(`[{"name":"temp","type":"int","min":40,"max":-10}]`)); err == nil {
		t.Fatal("expected an error: min must be <= max")
	}
}

func TestParseRejectsStringWithoutChoices(t *testing.T) {
	if _, err := Parse([]byte(`[{"name":"city","type":"string"}]`)); err == nil {
		t.Fatal("expected an error: string fields require non-empty choices")
	}
}

func TestParseRejectsDateWithoutFormat(t *testing.T) {
	if _, err := Parse([]byte(`[{"name":"d","type":"date","min":"2026-01-01","max":"2026-12-31"}]`)); err == nil {
		t.Fatal("expected an error: date fields require a format")
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	if _, err := Parse([]byte(`[{"name":"x","type":"bool"}]`)); err == nil {
		t.Fatal("expected an error for an unknown field type")
	}
}

func TestValidateConditionFieldDirect(t *testing.T) {
	s, _ := Parse([]byte(validSchemaJSON))
	if err := s.ValidateConditionField("temp"); err != nil {
		t.Fatalf("unexpected error for declared field: %v", err)
	}
}

func TestValidateConditionFieldAggregateAlias(t *testing.T) {
	s, _ := Parse([]byte(validSchemaJSON))
	if err := s.ValidateConditionField("avg_temp"); err != nil {
		t.Fatalf("unexpected error for numeric aggregate alias: %v", err)
	}
}

func TestValidateConditionFieldAggregateOverNonNumericRejected(t *testing.T) {
	s, _ := Parse([]byte(validSchemaJSON))
	if err := s.ValidateConditionField("avg_city"); err == nil {
		t.Fatal("expected an error: aggregate alias over a non-numeric field")
	}
}

func TestValidateConditionFieldUndeclared(t *testing.T) {
	s, _ := Parse([]byte(validSchemaJSON))
	if err := s.ValidateConditionField("pressure"); err == nil {
		t.Fatal("expected an error for an undeclared field")
	}
}
