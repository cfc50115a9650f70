// Package rare supports rare-event biased exploration of reaction
// networks: a dependency graph over reactions and solution subspaces
// whose distance metric feeds the priority strategy.
package rare

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"stamina/internal/storage"
)

// Subspace is an affine subspace of species space spanned by a set of
// combination vectors around a translation point. Distance is the
// Euclidean distance of a point to the subspace, computed through the
// orthogonal projector P = B (BᵀB)⁻¹ Bᵀ.
type Subspace struct {
	dim         int
	projection  *mat.Dense
	translation *mat.VecDense
}

// NewSubspace builds a subspace from combination vectors. All vectors
// and the translation must share the species dimension. A nil
// translation means the subspace passes through the origin.
func NewSubspace(combination []*mat.VecDense, translation *mat.VecDense) (*Subspace, error) {
	if len(combination) == 0 {
		return nil, fmt.Errorf("subspace needs at least one combination vector")
	}
	dim := combination[0].Len()
	basis := mat.NewDense(dim, len(combination), nil)
	for j, v := range combination {
		if v.Len() != dim {
			return nil, fmt.Errorf("combination vector %d has dimension %d, want %d", j, v.Len(), dim)
		}
		basis.SetCol(j, rawVec(v))
	}
	if translation == nil {
		translation = mat.NewVecDense(dim, nil)
	} else if translation.Len() != dim {
		return nil, fmt.Errorf("translation has dimension %d, want %d", translation.Len(), dim)
	}

	var gram mat.Dense
	gram.Mul(basis.T(), basis)
	var gramInv mat.Dense
	if err := gramInv.Inverse(&gram); err != nil {
		return nil, fmt.Errorf("combination vectors are linearly dependent: %w", err)
	}
	var tmp, projection mat.Dense
	tmp.Mul(basis, &gramInv)
	projection.Mul(&tmp, basis.T())

	return &Subspace{dim: dim, projection: &projection, translation: translation}, nil
}

func rawVec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// Dimension returns the species dimension of the ambient space.
func (s *Subspace) Dimension() int { return s.dim }

// Distance returns the Euclidean distance of vec to the subspace.
func (s *Subspace) Distance(vec *mat.VecDense) float64 {
	if vec.Len() != s.dim {
		return math.Inf(1)
	}
	var shifted mat.VecDense
	shifted.SubVec(vec, s.translation)
	var projected mat.VecDense
	projected.MulVec(s.projection, &shifted)
	var residual mat.VecDense
	residual.SubVec(&shifted, &projected)
	return mat.Norm(&residual, 2)
}

// OrthSubspace pins a subset of species to target values and is
// orthogonal to every other species axis, so distance short-circuits to
// the gap over the pinned species only. This is the satisfiability
// region shape of ragtimer-style models.
type OrthSubspace struct {
	pinned []PinnedSpecies
}

// PinnedSpecies fixes one species index to a value.
type PinnedSpecies struct {
	Species int
	Value   float64
}

// NewOrthSubspace builds the orthogonal subspace from pinned species.
func NewOrthSubspace(pinned []PinnedSpecies) (*OrthSubspace, error) {
	if len(pinned) == 0 {
		return nil, fmt.Errorf("orthogonal subspace needs at least one pinned species")
	}
	return &OrthSubspace{pinned: pinned}, nil
}

// Distance returns the Euclidean gap over the pinned species.
func (s *OrthSubspace) Distance(vec *mat.VecDense) float64 {
	sum := 0.0
	for _, p := range s.pinned {
		d := vec.AtVec(p.Species) - p.Value
		sum += d * d
	}
	return math.Sqrt(sum)
}

// DistanceMetric is anything that measures point-to-region distance in
// species space.
type DistanceMetric interface {
	Distance(vec *mat.VecDense) float64
}

// StateDistance adapts a species-space metric to compressed states: the
// returned function unpacks the mapped variables into a vector and
// delegates. speciesVars maps vector position to variable index.
func StateDistance(metric DistanceMetric, speciesVars []int) func(vt *storage.VarTable, cs storage.CompressedState) float64 {
	return func(vt *storage.VarTable, cs storage.CompressedState) float64 {
		vec := mat.NewVecDense(len(speciesVars), nil)
		for pos, varIdx := range speciesVars {
			vec.SetVec(pos, float64(vt.Get(cs, varIdx)))
		}
		return metric.Distance(vec)
	}
}
