package property

import (
	"stamina/internal/storage"
)

// BoundedUntil is a decomposed P=?[ phi1 U[lo,hi] phi2 ] formula. The
// time bounds are carried through to the downstream transient solver and
// play no role in truncation itself.
type BoundedUntil struct {
	Left      Node
	Right     Node
	LowerTime float64
	UpperTime float64
}

// Property binds a named formula to the expressions the explorer needs:
// the until decomposition for early termination and an optional event
// expression for the priority strategy.
type Property struct {
	Name  string
	Until *BoundedUntil
	// Event is the expression whose satisfaction boundary defines the
	// event of interest for rare/common biasing. For a bounded until
	// this is the right-hand operand.
	Event Node
}

// Phi1 evaluates the left operand at a state.
func (p *Property) Phi1(vt *storage.VarTable, cs storage.CompressedState) bool {
	return p.Until.Left.Eval(vt, cs)
}

// Phi2 evaluates the right operand at a state.
func (p *Property) Phi2(vt *storage.VarTable, cs storage.CompressedState) bool {
	return p.Until.Right.Eval(vt, cs)
}

// ShouldTerminate reports whether exploration past the state is useless:
// either phi1 already fails (the path can no longer satisfy the until)
// or phi2 already holds (the until is already decided).
func (p *Property) ShouldTerminate(vt *storage.VarTable, cs storage.CompressedState) bool {
	return !p.Phi1(vt, cs) || p.Phi2(vt, cs)
}

// Validate resolves all variable references against the model layout.
func (p *Property) Validate(vt *storage.VarTable) error {
	if err := Validate(p.Until.Left, vt); err != nil {
		return err
	}
	return Validate(p.Until.Right, vt)
}
