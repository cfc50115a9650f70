package storage

// StateID is a dense state identifier. ID 0 is reserved for the synthetic
// absorbing state and is never handed out for a real state.
type StateID uint32

// AbsorbingID is the reserved identifier of the synthetic absorbing state.
const AbsorbingID StateID = 0

// StateIndex is a content-addressed table from compressed states to dense
// identifiers. FindOrAdd is idempotent: the same state always resolves to
// the same id across every call and every refinement pass.
type StateIndex struct {
	byKey  map[string]StateID
	states []CompressedState
}

// NewStateIndex creates an index with the absorbing state pre-registered
// at id 0.
func NewStateIndex(absorbing CompressedState) *StateIndex {
	idx := &StateIndex{
		byKey:  make(map[string]StateID, 1024),
		states: make([]CompressedState, 0, 1024),
	}
	idx.byKey[absorbing.Key()] = AbsorbingID
	idx.states = append(idx.states, absorbing.Clone())
	return idx
}

// FindOrAdd resolves a state to its dense id, allocating the next id for
// a previously unseen state. wasNew reports an allocation. The absorbing
// state resolves to id 0 and is never reported new.
func (idx *StateIndex) FindOrAdd(cs CompressedState) (StateID, bool) {
	key := cs.Key()
	if id, ok := idx.byKey[key]; ok {
		return id, false
	}
	id := StateID(len(idx.states))
	idx.byKey[key] = id
	idx.states = append(idx.states, cs.Clone())
	return id, true
}

// Get resolves a state without allocating.
func (idx *StateIndex) Get(cs CompressedState) (StateID, bool) {
	id, ok := idx.byKey[cs.Key()]
	return id, ok
}

// StateOf returns the compressed state registered under id.
func (idx *StateIndex) StateOf(id StateID) CompressedState {
	return idx.states[id]
}

// Size returns the number of registered states, absorbing state included.
func (idx *StateIndex) Size() int { return len(idx.states) }
