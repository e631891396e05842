package wasmir

// Module is the full program: its functions and its heap (struct/array)
// type definitions, grouped into recursion groups so that cyclic
// references (a tape struct referencing a callee's tape struct, and vice
// versa in the case of mutual recursion) can be constructed together.
type Module struct {
	Funcs      []*Func
	FuncByName map[string]int

	Heaps     []HeapDef
	RecGroups [][]HeapID

	Features FeatureSet
}

// NewModule returns an empty module with the given declared features.
func NewModule(features FeatureSet) *Module {
	return &Module{
		FuncByName: make(map[string]int),
		Features:   features,
	}
}

// AddFunc registers f in the module, indexing it by name.
func (m *Module) AddFunc(f *Func) {
	m.FuncByName[f.Name] = len(m.Funcs)
	m.Funcs = append(m.Funcs, f)
}

// LookupFunc resolves a call target by name. Every call in a
// to-be-differentiated function must resolve here, or planning raises
// adcode.UnresolvedName (spec.md §3 invariant: "a callee's tape struct
// type must already be in the same recursion group as the caller's").
func (m *Module) LookupFunc(name string) (*Func, bool) {
	idx, ok := m.FuncByName[name]
	if !ok {
		return nil, false
	}
	return m.Funcs[idx], true
}

// NewHeap registers a heap type definition and returns its id.
func (m *Module) NewHeap(def HeapDef) HeapID {
	id := HeapID(len(m.Heaps))
	m.Heaps = append(m.Heaps, def)
	return id
}

// Heap returns the definition for id.
func (m *Module) Heap(id HeapID) HeapDef {
	return m.Heaps[id]
}

// NewRecGroup registers a set of heap ids as one recursion group.
func (m *Module) NewRecGroup(ids ...HeapID) {
	group := make([]HeapID, len(ids))
	copy(group, ids)
	m.RecGroups = append(m.RecGroups, group)
}

// Names returns every function name currently in the module, used by
// addriver's NameSet to seed collision-free name minting.
func (m *Module) Names() []string {
	names := make([]string, 0, len(m.Funcs))
	for _, f := range m.Funcs {
		names = append(names, f.Name)
	}
	return names
}
