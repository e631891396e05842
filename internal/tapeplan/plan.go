// Package tapeplan implements the Tape Planner (spec.md §4.2): a
// single-pass symbolic interpretation of a function body that decides
// which intermediate primal values and element-gradients the backward
// pass needs, and assembles the per-function tape field layout.
package tapeplan

import "wasmgrad/internal/wasmir"

// LoadKind distinguishes a compile-time constant load from a tape-field
// load in the backward pass.
type LoadKind uint8

const (
	LoadConst LoadKind = iota
	LoadField
)

// Load says how the backward pass obtains a primal or gradient value.
type Load struct {
	Kind  LoadKind
	Const float64
	Field int
}

// FieldRole says which planning rule allocated a tape field.
type FieldRole uint8

const (
	FieldStore FieldRole = iota // a forward-pass primal value
	FieldGrad                  // an in-forward-pass gradient value
	FieldSet                   // the gradient overwritten by an array.set
	FieldCall                  // a callee's sub-tape
)

// FieldPlan describes one field of the function's tape struct.
type FieldPlan struct {
	Role FieldRole
	// Source is the expression that produces this field's forward-pass
	// value: the saved expression for Store/Grad/Set, or the call site
	// for Call.
	Source wasmir.ExprID
	// Type is the field's concrete value type. For FieldCall this is
	// left zero-valued until addriver.Driver resolves the callee's tape
	// heap type and fills it in once every function has been planned.
	Type wasmir.ValType
	// CalleeName names the call target, only set for FieldCall.
	CalleeName string
}

// TapePlan is the TapePlan of spec.md §3.
type TapePlan struct {
	FuncName string
	Fields   []FieldPlan

	Stores map[wasmir.ExprID]int
	Grads  map[wasmir.ExprID]int
	Sets   map[wasmir.ExprID]int
	Calls  map[wasmir.ExprID]int

	Loads     map[wasmir.ExprID]Load
	GradLoads map[wasmir.ExprID]Load
}

func newPlan(funcName string) *TapePlan {
	return &TapePlan{
		FuncName:  funcName,
		Stores:    make(map[wasmir.ExprID]int),
		Grads:     make(map[wasmir.ExprID]int),
		Sets:      make(map[wasmir.ExprID]int),
		Calls:     make(map[wasmir.ExprID]int),
		Loads:     make(map[wasmir.ExprID]Load),
		GradLoads: make(map[wasmir.ExprID]Load),
	}
}

// Resolver resolves a call target's name within the module and provides
// its heap/type information for array/struct element analysis. addriver
// passes the real *wasmir.Module in; tests can supply a stub.
type Resolver interface {
	LookupFunc(name string) (*wasmir.Func, bool)
	Heap(id wasmir.HeapID) wasmir.HeapDef
}

// Mapper is the subset of gradtype.Mapper the planner needs: computing
// gradient types for fields it allocates.
type Mapper interface {
	Map(t wasmir.ValType) (wasmir.ValType, error)
}

// Plan performs the symbolic interpretation of f's body and returns its
// TapePlan, or the first error encountered (spec.md §4.3: "abort[s] the
// whole module transform").
func Plan(f *wasmir.Func, mod Resolver, mapper Mapper) (*TapePlan, error) {
	p := &planner{
		f:          f,
		mod:        mod,
		mapper:     mapper,
		vars:       make([]Value, len(f.Locals)),
		storeField: make(map[wasmir.ExprID]int),
		gradField:  make(map[wasmir.ExprID]int),
		plan:       newPlan(f.Name),
	}
	for i := range p.vars {
		p.vars[i] = paramValue()
	}
	if _, err := p.planSeq(f.Body); err != nil {
		return nil, err
	}
	return p.plan, nil
}

type planner struct {
	f      *wasmir.Func
	mod    Resolver
	mapper Mapper

	vars       []Value
	storeField map[wasmir.ExprID]int // memoizes mark()'s field for a given Expression(e)
	gradField  map[wasmir.ExprID]int // memoizes markGrad()'s field for a given ref

	plan *TapePlan
}

func (p *planner) allocField(role FieldRole, source wasmir.ExprID, typ wasmir.ValType, calleeName string) int {
	idx := len(p.plan.Fields)
	p.plan.Fields = append(p.plan.Fields, FieldPlan{Role: role, Source: source, Type: typ, CalleeName: calleeName})
	return idx
}
