package wasmir

// Builder stages new heap types and functions against a target Module
// without mutating it until Commit is called. addriver.Driver uses this
// to satisfy spec.md §4.3's failure semantics: "every error aborts the
// transformation immediately; no partial functions are added."
//
// Heap ids handed out by NewHeap are valid immediately (they are computed
// as an offset past the target module's current heap count), so generated
// code can reference a staged heap type before Commit runs.
type Builder struct {
	target *Module

	pendingHeaps     []HeapDef
	pendingRecGroups [][]HeapID
	pendingFuncs     []*Func
}

// NewBuilder returns a Builder that will, on Commit, append its staged
// heaps, rec groups, and functions onto target.
func NewBuilder(target *Module) *Builder {
	return &Builder{target: target}
}

// NewHeap stages a heap definition and returns its final HeapID.
func (b *Builder) NewHeap(def HeapDef) HeapID {
	id := HeapID(len(b.target.Heaps) + len(b.pendingHeaps))
	b.pendingHeaps = append(b.pendingHeaps, def)
	return id
}

// NewRecGroup stages a recursion group over (possibly mixed staged and
// pre-existing) heap ids.
func (b *Builder) NewRecGroup(ids ...HeapID) {
	group := make([]HeapID, len(ids))
	copy(group, ids)
	b.pendingRecGroups = append(b.pendingRecGroups, group)
}

// SetHeap overwrites a previously staged (not yet committed) heap
// definition in place. addriver.Driver uses this to reserve tape heap
// ids for every function up front, then patch in each one's real field
// list once every callee's tape heap id is known (a FieldCall field's
// type is a reference to the callee's own tape heap).
func (b *Builder) SetHeap(id HeapID, def HeapDef) {
	local := int(id) - len(b.target.Heaps)
	if local < 0 || local >= len(b.pendingHeaps) {
		return
	}
	b.pendingHeaps[local] = def
}

// NewFunc stages a new function. The returned *Func is mutable until
// Commit; callers build its body via Func.Emit/Func.SetBody as usual.
func (b *Builder) NewFunc(name string, params, results Tuple) *Func {
	f := NewFunc(name, params, results)
	b.pendingFuncs = append(b.pendingFuncs, f)
	return f
}

// Pending reports how many heaps and functions are staged, mostly for
// tests and CLI diagnostics.
func (b *Builder) Pending() (heaps, funcs int) {
	return len(b.pendingHeaps), len(b.pendingFuncs)
}

// Commit splices every staged heap, rec group, and function into the
// target module. It never fails: callers must validate everything before
// calling Commit, since there is no rollback once real module state has
// been mutated elsewhere.
func (b *Builder) Commit() {
	b.target.Heaps = append(b.target.Heaps, b.pendingHeaps...)
	b.target.RecGroups = append(b.target.RecGroups, b.pendingRecGroups...)
	for _, f := range b.pendingFuncs {
		b.target.AddFunc(f)
	}
	b.pendingHeaps = nil
	b.pendingRecGroups = nil
	b.pendingFuncs = nil
}

// Discard drops every staged addition without touching the target module.
// Used by addriver when a later function in the batch fails to transform.
func (b *Builder) Discard() {
	b.pendingHeaps = nil
	b.pendingRecGroups = nil
	b.pendingFuncs = nil
}
