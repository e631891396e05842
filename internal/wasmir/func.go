package wasmir

// Func is one function of a Module: its signature, its locals (params
// occupy local indices [0, len(Params)) the way Wasm numbers them), and
// its body as a sequence of top-level statement expressions.
type Func struct {
	Name     string
	Exported bool

	Params  Tuple
	Results Tuple
	Locals  []ValType // index 0..len(Params)-1 mirror Params; the rest are extra locals

	Body  []ExprID // top-level statements, executed in order
	Exprs []Expr   // arena; ExprID indexes into this slice
}

// NewFunc allocates a function with its parameters pre-registered as the
// first len(params) locals, per Wasm local numbering.
func NewFunc(name string, params, results Tuple) *Func {
	f := &Func{
		Name:    name,
		Params:  params,
		Results: results,
		Locals:  make([]ValType, len(params)),
	}
	copy(f.Locals, params)
	return f
}

// AddLocal allocates a new local of type t and returns its index.
func (f *Func) AddLocal(t ValType) int {
	idx := len(f.Locals)
	f.Locals = append(f.Locals, t)
	return idx
}

// LocalType returns the type of local i.
func (f *Func) LocalType(i int) ValType {
	return f.Locals[i]
}

// Emit appends e to the expression arena and returns its id. Callers are
// responsible for setting e.Type before any reader depends on it.
func (f *Func) Emit(e Expr) ExprID {
	id := ExprID(len(f.Exprs))
	f.Exprs = append(f.Exprs, e)
	return id
}

// Expr returns the node for id.
func (f *Func) Expr(id ExprID) *Expr {
	return &f.Exprs[id]
}

// SetBody replaces the function's top-level statement list.
func (f *Func) SetBody(body []ExprID) {
	f.Body = body
}
