// Package model is the native YAML front-end: a reaction-network model
// description that compiles into the next-state oracle the truncation
// core explores.
package model

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"stamina/internal/property"
	"stamina/internal/rare"
	"stamina/internal/storage"
)

// SpeciesDecl declares one species (model variable).
type SpeciesDecl struct {
	Name    string `yaml:"name"`
	Initial int64  `yaml:"initial"`
	Lower   int64  `yaml:"lower"`
	Upper   int64  `yaml:"upper"`
	Bool    bool   `yaml:"bool"`
}

// ReactionDecl declares one mass-action reaction. Rate is the kinetic
// constant; the propensity multiplies it, for every reactant, by the
// falling factorial count*(count-1)*... with one factor per unit of
// stoichiometry. Guard is an optional boolean
// expression gating the reaction.
type ReactionDecl struct {
	Name      string           `yaml:"name"`
	Rate      float64          `yaml:"rate"`
	Guard     string           `yaml:"guard"`
	Reactants map[string]int64 `yaml:"reactants"`
	Update    map[string]int64 `yaml:"update"`
	Reward    float64          `yaml:"reward"`
}

// Document is the YAML shape of a model file.
type Document struct {
	Name      string         `yaml:"name"`
	Type      string         `yaml:"type"`
	Constants map[string]any `yaml:"constants"`
	Species   []SpeciesDecl  `yaml:"species"`
	Reactions []ReactionDecl `yaml:"reactions"`
}

// Model is a compiled reaction network: the packed variable layout, the
// initial state, and per-reaction evaluators.
type Model struct {
	Name      string
	vars      *storage.VarTable
	initial   storage.CompressedState
	reactions []compiledReaction
}

type compiledReaction struct {
	name      string
	rate      float64
	guard     property.Node
	reactants []speciesCoeff
	update    []speciesCoeff
	reward    float64
}

type speciesCoeff struct {
	varIndex int
	coeff    int64
}

// Load reads and compiles a model file. Constants given as "A=1,B=2"
// override the document's constants block before compilation.
func Load(path, consts string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model file: %w", err)
	}
	if err := applyConsts(&doc, consts); err != nil {
		return nil, err
	}
	return Compile(&doc)
}

func applyConsts(doc *Document, consts string) error {
	if consts == "" {
		return nil
	}
	if doc.Constants == nil {
		doc.Constants = make(map[string]any)
	}
	for _, pair := range strings.Split(consts, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return fmt.Errorf("bad constant definition %q (want NAME=VALUE)", pair)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("constant %s: %w", name, err)
		}
		doc.Constants[name] = v
	}
	return nil
}

// Compile validates the document and builds the executable model.
func Compile(doc *Document) (*Model, error) {
	if doc.Type != "" && doc.Type != "ctmc" {
		return nil, fmt.Errorf("unsupported model type %q: only ctmc is supported", doc.Type)
	}
	if len(doc.Species) == 0 {
		return nil, fmt.Errorf("model declares no species")
	}

	decls := make([]storage.VarDecl, len(doc.Species))
	for i, s := range doc.Species {
		kind := storage.VarInt
		lower, upper := s.Lower, s.Upper
		if s.Bool {
			kind = storage.VarBool
			lower, upper = 0, 1
		}
		decls[i] = storage.VarDecl{Name: s.Name, Kind: kind, Lower: lower, Upper: upper}
	}
	vt, err := storage.NewVarTable(decls)
	if err != nil {
		return nil, err
	}

	initial := vt.NewState()
	for i, s := range doc.Species {
		if !vt.Var(i).InBounds(s.Initial) {
			return nil, fmt.Errorf("species %q: initial value %d outside [%d, %d]", s.Name, s.Initial, vt.Var(i).Lower, vt.Var(i).Upper)
		}
		vt.Set(initial, i, s.Initial)
	}

	m := &Model{Name: doc.Name, vars: vt, initial: initial}
	for _, r := range doc.Reactions {
		cr, err := compileReaction(doc, r, vt)
		if err != nil {
			return nil, fmt.Errorf("reaction %q: %w", r.Name, err)
		}
		m.reactions = append(m.reactions, cr)
	}
	if len(m.reactions) == 0 {
		return nil, fmt.Errorf("model declares no reactions")
	}
	return m, nil
}

func compileReaction(doc *Document, r ReactionDecl, vt *storage.VarTable) (compiledReaction, error) {
	cr := compiledReaction{name: r.Name, rate: resolveRate(doc, r), reward: r.Reward}
	if cr.rate <= 0 {
		return cr, fmt.Errorf("rate must be positive, got %v", cr.rate)
	}
	if math.IsNaN(cr.rate) {
		return cr, fmt.Errorf("rate is NaN")
	}
	if r.Guard != "" {
		guard, err := parseGuard(r.Guard, vt)
		if err != nil {
			return cr, err
		}
		cr.guard = guard
	}
	var err error
	if cr.reactants, err = resolveCoeffs(r.Reactants, vt); err != nil {
		return cr, err
	}
	if cr.update, err = resolveCoeffs(r.Update, vt); err != nil {
		return cr, err
	}
	if len(cr.update) == 0 {
		return cr, fmt.Errorf("reaction has no update")
	}
	return cr, nil
}

// resolveRate lets a document constant named after the reaction
// override the literal rate, so "--const birth=0.5" style sweeps work.
func resolveRate(doc *Document, r ReactionDecl) float64 {
	if v, ok := doc.Constants[r.Name]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return r.Rate
}

func resolveCoeffs(m map[string]int64, vt *storage.VarTable) ([]speciesCoeff, error) {
	out := make([]speciesCoeff, 0, len(m))
	for name, coeff := range m {
		idx, ok := vt.IndexOf(name)
		if !ok {
			return nil, fmt.Errorf("unknown species %q", name)
		}
		out = append(out, speciesCoeff{varIndex: idx, coeff: coeff})
	}
	// Deterministic order regardless of map iteration.
	sort.Slice(out, func(i, j int) bool { return out[i].varIndex < out[j].varIndex })
	return out, nil
}

// parseGuard reuses the property expression grammar for reaction guards.
func parseGuard(src string, vt *storage.VarTable) (property.Node, error) {
	prop, err := property.Parse("P=? [ "+src+" U true ]", vt)
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}
	return prop.Until.Left, nil
}

// Vars returns the packed variable layout.
func (m *Model) Vars() *storage.VarTable { return m.vars }

// InitialStates returns the single initial assignment.
func (m *Model) InitialStates() ([]storage.CompressedState, error) {
	return []storage.CompressedState{m.initial.Clone()}, nil
}

// Network reduces the model to its rare-event stoichiometric view.
func (m *Model) Network() *rare.Network {
	n := &rare.Network{Species: make([]string, m.vars.NumVars())}
	for i := 0; i < m.vars.NumVars(); i++ {
		n.Species[i] = m.vars.Var(i).Name
	}
	for _, r := range m.reactions {
		update := make([]int64, m.vars.NumVars())
		for _, u := range r.update {
			update[u.varIndex] = u.coeff
		}
		n.Reactions = append(n.Reactions, rare.Reaction{Name: r.name, Update: update})
	}
	return n
}
