package subscription

import "github.com/adred-codev/pubsub-fabric/internal/model"

// Covers implements the conservative covering relation from spec.md §4.1:
// A covers B iff every field in A's conditions also appears in B's, and
// for each such field A's condition subsumes B's per the op-pair table.
// This is sufficient, not necessary — pairs not in the table are treated
// as "does not cover".
//
// Windowed and non-windowed subscriptions never cover one another.
func Covers(a, b *Subscription) bool {
	if a.IsWindowed() != b.IsWindowed() {
		return false
	}

	bByField := make(map[string]model.Condition, len(b.Conditions))
	for _, c := range b.Conditions {
		bByField[c.Field] = c
	}

	for _, ac := range a.Conditions {
		bc, ok := bByField[ac.Field]
		if !ok {
			return false
		}
		if !opCovers(ac.Op, ac.Value, bc.Op, bc.Value) {
			return false
		}
	}
	return true
}

// opCovers implements the operator-pair table from spec.md §4.1. av/bv are
// A's and B's condition values for the shared field.
func opCovers(aOp model.Operator, av model.Value, bOp model.Operator, bv model.Value) bool {
	cmp, ok := av.Compare(bv)
	switch {
	case aOp == model.OpEq && bOp == model.OpEq:
		return av.Equal(bv)
	case aOp == model.OpNe && bOp == model.OpNe:
		return av.Equal(bv)
	case aOp == model.OpGt && bOp == model.OpGt:
		return ok && cmp <= 0
	case aOp == model.OpGt && bOp == model.OpGe:
		return ok && cmp < 0
	case aOp == model.OpGe && bOp == model.OpGt:
		return ok && cmp <= 0
	case aOp == model.OpGe && bOp == model.OpGe:
		return ok && cmp <= 0
	case aOp == model.OpLt && bOp == model.OpLt:
		return ok && cmp >= 0
	case aOp == model.OpLt && bOp == model.OpLe:
		return ok && cmp > 0
	case aOp == model.OpLe && bOp == model.OpLt:
		return ok && cmp >= 0
	case aOp == model.OpLe && bOp == model.OpLe:
		return ok && cmp >= 0
	default:
		return false
	}
}
