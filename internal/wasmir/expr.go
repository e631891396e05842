package wasmir

// ExprID indexes into a Func's expression arena.
type ExprID int

// NoExpr is the sentinel "no expression" id, used for unused operand slots.
const NoExpr ExprID = -1

// ExprKind enumerates the expression kinds §4.2 assigns planning rules to.
// Any kind not listed here is rejected with adcode.UnsupportedExpression.
type ExprKind uint8

const (
	ExprBlock ExprKind = iota
	ExprConstF32
	ExprConstF64
	ExprConstI32
	ExprConstI64
	ExprLocalGet
	ExprLocalSet
	ExprLocalTee
	ExprBinary
	ExprCall
	ExprReturnCall // return_call: always rejected with adcode.TailCall
	ExprStructNew
	ExprArrayNewDefault
	ExprArrayGet
	ExprArraySet
	ExprArrayLen
	// ExprTupleMake groups its Children into one multi-value result. It
	// is never produced by §4.2's planning rules as an intermediate
	// value; it only ever appears as a function body's final statement,
	// for both original multi-result functions and the synthesized
	// F_fwd/F_bwd bodies (spec.md §4.3 "Body assembly").
	ExprTupleMake
	// ExprMultiSet destructures a multi-value-producing Value (only ever
	// an ExprCall to an F_fwd/F_bwd pair) into Locals, one per result, in
	// order. Only emitted by adgen; never a planning target.
	ExprMultiSet
	// ExprStructGet / ExprStructSet read and write one field of a struct
	// value. adgen emits these to build and unpack tape structs; §4.2
	// never assigns them a planning rule; a field access in an original
	// function body is unsupported (falls through the plan1 default).
	ExprStructGet
	ExprStructSet
)

func (k ExprKind) String() string {
	names := [...]string{
		"block", "const.f32", "const.f64", "const.i32", "const.i64",
		"local.get", "local.set", "local.tee", "binary", "call",
		"return_call", "struct.new", "array.new_default", "array.get",
		"array.set", "array.len", "tuple.make", "multi.set",
		"struct.get", "struct.set",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// BinOp enumerates the binary float operators §4.2/§4.3 give reverse rules
// for. Integer binary ops are representable in the IR but never reach a
// differentiable Binary node (their gradient type is unit, see gradtype).
type BinOp uint8

const (
	BinAddF32 BinOp = iota
	BinAddF64
	BinSubF32
	BinSubF64
	BinMulF32
	BinMulF64
	BinDivF32
	BinDivF64
)

// IsF64 reports whether op operates on f64 (as opposed to f32).
func (op BinOp) IsF64() bool {
	switch op {
	case BinAddF64, BinSubF64, BinMulF64, BinDivF64:
		return true
	default:
		return false
	}
}

// Expr is one node of a function body's expression tree. Only the fields
// relevant to Kind are populated; the rest are zero. This mirrors the
// kind-tagged-struct shape used throughout this codebase's own IRs rather
// than a Go interface per node kind, so passes can switch on Kind without
// type assertions.
type Expr struct {
	Kind ExprKind
	Type ValType // result type; set by whoever emits the node

	// ExprBlock
	Children []ExprID

	// ExprConstF32 / ExprConstF64 / ExprConstI32 / ExprConstI64
	F32 float32
	F64 float64
	I32 int32
	I64 int64

	// ExprLocalGet / ExprLocalSet / ExprLocalTee
	Local int
	Value ExprID // RHS for LocalSet/LocalTee

	// ExprBinary
	Op          BinOp
	Left, Right ExprID

	// ExprCall
	Callee      string
	Args        []ExprID
	ResultTypes Tuple // ExprCall only: the callee's full multi-value result shape

	// ExprStructNew / ExprArrayNewDefault
	Heap           HeapID
	Size           ExprID // ExprArrayNewDefault: element count
	NonDefaultInit bool   // set to simulate the rejected non-default-init case

	// ExprArrayGet / ExprArraySet / ExprArrayLen
	Array ExprID
	Index ExprID

	// ExprMultiSet: destructures Value (an ExprCall) into these locals, in order.
	Locals []int

	// ExprStructGet / ExprStructSet
	Struct ExprID
	Field  int
}
