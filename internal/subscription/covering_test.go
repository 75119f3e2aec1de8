package subscription

import (
	"testing"

	"github.com/adred-codev/pubsub-fabric/internal/model"
)

// Scenario 3 (spec.md §8): covering.
func TestCoveringScenario3(t *testing.T) {
	a := New([]model.Condition{{Field: "temp", Op: model.OpGt, Value: model.IntValue(10)}}, 0, "sa")
	b := New([]model.Condition{
		{Field: "temp", Op: model.OpGt, Value: model.IntValue(20)},
		{Field: "city", Op: model.OpEq, Value: model.StringValue("X")},
	}, 0, "sb")

	if !Covers(a, b) {
		t.Fatal("expected A=[temp>10] to cover B=[temp>20,city=X]")
	}
	if Covers(b, a) {
		t.Fatal("expected B to not cover A (B has a field A lacks)")
	}
}

// Covering soundness (spec.md §8): if covers(A,B), then B.matches(P) implies
// A.matches(P) for every publication P.
func TestCoveringSoundness(t *testing.T) {
	a := New([]model.Condition{{Field: "temp", Op: model.OpGe, Value: model.IntValue(10)}}, 0, "sa")
	b := New([]model.Condition{{Field: "temp", Op: model.OpGe, Value: model.IntValue(20)}}, 0, "sb")

	if !Covers(a, b) {
		t.Fatal("expected temp>=10 to cover temp>=20")
	}

	for _, temp := range []int64{0, 9, 10, 15, 20, 21, 100} {
		pub := mustPub(map[string]model.Value{"temp": model.IntValue(temp)})
		if b.Matches(pub) && !a.Matches(pub) {
			t.Fatalf("soundness violated at temp=%d: B matched but A did not", temp)
		}
	}
}

func TestCoveringRejectsMissingField(t *testing.T) {
	a := New([]model.Condition{
		{Field: "temp", Op: model.OpGt, Value: model.IntValue(10)},
		{Field: "humidity", Op: model.OpLt, Value: model.IntValue(50)},
	}, 0, "sa")
	b := New([]model.Condition{{Field: "temp", Op: model.OpGt, Value: model.IntValue(20)}}, 0, "sb")

	if Covers(a, b) {
		t.Fatal("A requires humidity, which B doesn't constrain: must not cover")
	}
}

func TestCoveringWindowedNeverCoversNonWindowed(t *testing.T) {
	windowed := New([]model.Condition{{Field: "avg_temp", Op: model.OpGt, Value: model.IntValue(10)}}, 3, "sa")
	simple := New([]model.Condition{{Field: "avg_temp", Op: model.OpGt, Value: model.IntValue(20)}}, 0, "sb")

	if Covers(windowed, simple) || Covers(simple, windowed) {
		t.Fatal("windowed and non-windowed subscriptions must never cover one another")
	}
}

func TestCoveringUnrecognizedOperatorPairDoesNotCover(t *testing.T) {
	a := New([]model.Condition{{Field: "temp", Op: model.OpGt, Value: model.IntValue(10)}}, 0, "sa")
	b := New([]model.Condition{{Field: "temp", Op: model.OpEq, Value: model.IntValue(15)}}, 0, "sb")

	if Covers(a, b) {
		t.Fatal("the (>, =) op pair is not in the conservative table and must not cover")
	}
}
