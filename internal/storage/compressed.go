// Package storage holds the state-space data structures for truncation:
// bit-packed compressed states, the dense state index, and the transition
// staging buffer that finalizes into a CSR matrix.
package storage

import (
	"fmt"
	"strings"
)

// VarKind distinguishes the two variable encodings a model may declare.
type VarKind uint8

const (
	// VarInt is a bounded integer variable.
	VarInt VarKind = iota
	// VarBool is a boolean variable, packed as a single bit pair.
	VarBool
)

// VarInfo describes one model variable inside the packed layout.
// Values are stored biased: encoded = value - Lower + 1, so that the
// all-zeros word pattern is reserved for the synthetic absorbing state
// (every variable one below its lower bound).
type VarInfo struct {
	Name      string
	Kind      VarKind
	Lower     int64
	Upper     int64
	BitOffset uint
	BitWidth  uint
}

// VarTable is the packed layout of all model variables. It is immutable
// after construction and shared by every CompressedState of a run.
type VarTable struct {
	vars      []VarInfo
	byName    map[string]int
	totalBits uint
	words     int
}

// VarDecl is a variable declaration prior to layout.
type VarDecl struct {
	Name  string
	Kind  VarKind
	Lower int64
	Upper int64
}

// NewVarTable lays out the declared variables, assigning bit offsets in
// declaration order.
func NewVarTable(decls []VarDecl) (*VarTable, error) {
	vt := &VarTable{byName: make(map[string]int, len(decls))}
	offset := uint(0)
	for _, d := range decls {
		if _, dup := vt.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate variable %q", d.Name)
		}
		lower, upper := d.Lower, d.Upper
		if d.Kind == VarBool {
			lower, upper = 0, 1
		}
		if upper < lower {
			return nil, fmt.Errorf("variable %q: upper bound %d below lower bound %d", d.Name, upper, lower)
		}
		// One extra code point below Lower is reserved for the absorbing
		// sentinel, so the range to encode is upper-lower+2 values.
		width := bitsFor(uint64(upper-lower) + 1)
		vi := VarInfo{
			Name:      d.Name,
			Kind:      d.Kind,
			Lower:     lower,
			Upper:     upper,
			BitOffset: offset,
			BitWidth:  width,
		}
		vt.byName[d.Name] = len(vt.vars)
		vt.vars = append(vt.vars, vi)
		offset += width
	}
	vt.totalBits = offset
	vt.words = int((offset + 63) / 64)
	if vt.words == 0 {
		vt.words = 1
	}
	return vt, nil
}

func bitsFor(n uint64) uint {
	w := uint(1)
	for (uint64(1) << w) < n+1 {
		w++
	}
	return w
}

// NumVars returns the number of declared variables.
func (vt *VarTable) NumVars() int { return len(vt.vars) }

// Var returns the layout record for variable i.
func (vt *VarTable) Var(i int) VarInfo { return vt.vars[i] }

// IndexOf returns the position of the named variable.
func (vt *VarTable) IndexOf(name string) (int, bool) {
	i, ok := vt.byName[name]
	return i, ok
}

// Words returns the number of 64-bit words one state occupies.
func (vt *VarTable) Words() int { return vt.words }

// CompressedState is a bit-packed variable assignment. Two states compare
// equal iff every variable agrees; Key gives a map-friendly byte form.
type CompressedState []uint64

// NewState allocates a state with every variable at its lower bound.
func (vt *VarTable) NewState() CompressedState {
	cs := make(CompressedState, vt.words)
	for i := range vt.vars {
		vt.Set(cs, i, vt.vars[i].Lower)
	}
	return cs
}

// AbsorbingState returns the synthetic absorbing assignment: every
// variable one below its lower bound, which is the all-zeros encoding.
func (vt *VarTable) AbsorbingState() CompressedState {
	return make(CompressedState, vt.words)
}

// Clone copies a state so the original can keep mutating.
func (cs CompressedState) Clone() CompressedState {
	out := make(CompressedState, len(cs))
	copy(out, cs)
	return out
}

// Key returns the state's identity as a string usable as a map key.
func (cs CompressedState) Key() string {
	var sb strings.Builder
	sb.Grow(len(cs) * 8)
	for _, w := range cs {
		for s := 0; s < 64; s += 8 {
			sb.WriteByte(byte(w >> s))
		}
	}
	return sb.String()
}

// Equal reports whether both states assign identical values.
func (cs CompressedState) Equal(other CompressedState) bool {
	if len(cs) != len(other) {
		return false
	}
	for i := range cs {
		if cs[i] != other[i] {
			return false
		}
	}
	return true
}

// Get unpacks variable i. The absorbing sentinel decodes to Lower-1.
func (vt *VarTable) Get(cs CompressedState, i int) int64 {
	vi := &vt.vars[i]
	raw := extractBits(cs, vi.BitOffset, vi.BitWidth)
	return int64(raw) + vi.Lower - 1
}

// GetByName unpacks the named variable.
func (vt *VarTable) GetByName(cs CompressedState, name string) (int64, bool) {
	i, ok := vt.byName[name]
	if !ok {
		return 0, false
	}
	return vt.Get(cs, i), true
}

// Set packs value into variable i. Values outside [Lower-1, Upper] are an
// encoding error the caller must not produce.
func (vt *VarTable) Set(cs CompressedState, i int, value int64) {
	vi := &vt.vars[i]
	raw := uint64(value - vi.Lower + 1)
	insertBits(cs, vi.BitOffset, vi.BitWidth, raw)
}

// InBounds reports whether value is a legal (non-sentinel) assignment.
func (vi VarInfo) InBounds(value int64) bool {
	return value >= vi.Lower && value <= vi.Upper
}

// String renders a state for diagnostics as name=value pairs.
func (vt *VarTable) String(cs CompressedState) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := range vt.vars {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%d", vt.vars[i].Name, vt.Get(cs, i))
	}
	sb.WriteByte(']')
	return sb.String()
}

func extractBits(cs CompressedState, offset, width uint) uint64 {
	word := offset / 64
	shift := offset % 64
	mask := (uint64(1) << width) - 1
	v := cs[word] >> shift
	if shift+width > 64 {
		v |= cs[word+1] << (64 - shift)
	}
	return v & mask
}

func insertBits(cs CompressedState, offset, width uint, value uint64) {
	word := offset / 64
	shift := offset % 64
	mask := (uint64(1) << width) - 1
	value &= mask
	cs[word] = (cs[word] &^ (mask << shift)) | (value << shift)
	if shift+width > 64 {
		spill := 64 - shift
		hiMask := mask >> spill
		cs[word+1] = (cs[word+1] &^ hiMask) | (value >> spill)
	}
}
