package model

import (
	"stamina/internal/oracle"
	"stamina/internal/storage"
)

// Expand computes the mass-action behavior at a state: every enabled
// reaction contributes one transition whose rate is the kinetic constant
// times the product of reactant counts. Reactions pushing any species
// outside its bounds are disabled. Reaction declaration order makes the
// output deterministic.
func (m *Model) Expand(cs storage.CompressedState) (oracle.Behavior, error) {
	behavior := oracle.Behavior{Expanded: true}
	var choice oracle.Choice
	for i := range m.reactions {
		r := &m.reactions[i]
		if r.guard != nil && !r.guard.Eval(m.vars, cs) {
			continue
		}
		propensity := m.propensity(r, cs)
		if propensity <= 0 {
			continue
		}
		next, ok := m.apply(r, cs)
		if !ok {
			continue
		}
		choice.Transitions = append(choice.Transitions, oracle.TargetRate{State: next, Rate: propensity})
		behavior.StateReward += r.reward
	}
	if len(choice.Transitions) > 0 {
		behavior.Choices = []oracle.Choice{choice}
	}
	return behavior, nil
}

func (m *Model) propensity(r *compiledReaction, cs storage.CompressedState) float64 {
	p := r.rate
	for _, rc := range r.reactants {
		count := m.vars.Get(cs, rc.varIndex)
		for k := int64(0); k < rc.coeff; k++ {
			p *= float64(count - k)
		}
	}
	return p
}

func (m *Model) apply(r *compiledReaction, cs storage.CompressedState) (storage.CompressedState, bool) {
	next := cs.Clone()
	for _, u := range r.update {
		v := m.vars.Get(next, u.varIndex) + u.coeff
		if !m.vars.Var(u.varIndex).InBounds(v) {
			return nil, false
		}
		m.vars.Set(next, u.varIndex, v)
	}
	return next, true
}
