// Package gradtype implements the Type Mapper (spec.md §4.1): the
// memoized, pure mapping from a primal type P to its gradient type G(P).
package gradtype

import (
	"sync"

	"wasmgrad/internal/adcode"
	"wasmgrad/internal/wasmir"
)

// Mapper memoizes heap-type mappings, since heap defs may be
// self-referential (a struct field referencing its own heap id through a
// recursion group) and recomputing them per use would both be wasteful
// and, for genuinely cyclic defs, non-terminating.
//
// addriver.Driver plans multiple functions concurrently against one
// shared Mapper, so the cache and the underlying Builder it stages new
// heaps on are both guarded by mu.
type Mapper struct {
	m     *wasmir.Module
	b     *wasmir.Builder
	mu    sync.Mutex
	cache map[wasmir.HeapID]wasmir.HeapID
}

// NewMapper returns a Mapper that reads heap defs from m and stages any
// newly constructed gradient heap types on b.
func NewMapper(m *wasmir.Module, b *wasmir.Builder) *Mapper {
	return &Mapper{m: m, b: b, cache: make(map[wasmir.HeapID]wasmir.HeapID)}
}

// IsUnit reports whether t's gradient carries no information.
func IsUnit(t wasmir.ValType) bool {
	switch t.Kind {
	case wasmir.KindI32, wasmir.KindI64, wasmir.KindNone, wasmir.KindUnreachable:
		return true
	default:
		return false
	}
}

// BecomesMutable is the "becomes mutable on differentiation" predicate of
// §4.1: true iff the primal type is f32 or f64.
func BecomesMutable(primal wasmir.ValType) bool {
	return primal.Kind == wasmir.KindF32 || primal.Kind == wasmir.KindF64
}

// Map computes G(P) for a scalar/ref primal type.
func (mp *Mapper) Map(t wasmir.ValType) (wasmir.ValType, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.mapLocked(t)
}

func (mp *Mapper) mapLocked(t wasmir.ValType) (wasmir.ValType, error) {
	switch t.Kind {
	case wasmir.KindF32:
		return wasmir.F32(), nil
	case wasmir.KindF64:
		return wasmir.F64(), nil
	case wasmir.KindI32, wasmir.KindI64, wasmir.KindNone:
		return wasmir.None(), nil
	case wasmir.KindRef:
		gh, err := mp.mapHeapLocked(t.Heap)
		if err != nil {
			return wasmir.ValType{}, err
		}
		return wasmir.Ref(gh), nil
	default:
		return wasmir.ValType{}, adcode.NewFunc(adcode.UnsupportedType, "", t.String())
	}
}

// MapTuple maps a tuple element-wise, dropping unit components (e.g.
// (i32,f64) -> (f64); (f64,i32,f32) -> (f64,f32)).
func (mp *Mapper) MapTuple(t wasmir.Tuple) (wasmir.Tuple, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make(wasmir.Tuple, 0, len(t))
	for _, elem := range t {
		if IsUnit(elem) {
			continue
		}
		g, err := mp.mapLocked(elem)
		if err != nil {
			return nil, err
		}
		if g.Kind == wasmir.KindNone {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

// MapHeap computes G(heap) structurally, memoized by HeapID.
//
//   - G(struct{f_i:P_i}) is struct{f_i:G(P_i)} omitting fields whose G is
//     unit; every surviving field becomes mutable if the corresponding
//     primal is differentiable or the original field was mutable.
//   - G(array P) with G(P)=unit collapses to struct{}; otherwise it is
//     array G(P) with the element mutable whenever the primal was mutable
//     or P is differentiable.
func (mp *Mapper) MapHeap(h wasmir.HeapID) (wasmir.HeapID, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.mapHeapLocked(h)
}

// mapHeapLocked does the actual work assuming mu is already held. It
// recurses through mapLocked (never the public, locking entry points),
// so one call to MapHeap/Map holds mu for its entire duration: multiple
// functions' plans share one Mapper (addriver.Driver may plan them
// concurrently), and a non-reentrant mutex held across recursive heap
// construction would deadlock otherwise.
func (mp *Mapper) mapHeapLocked(h wasmir.HeapID) (wasmir.HeapID, error) {
	if gh, ok := mp.cache[h]; ok {
		return gh, nil
	}

	def := mp.m.Heap(h)
	switch def.Kind {
	case wasmir.HeapStruct:
		// Reserve the gradient heap id before mapping the fields, so a
		// field that refers back to h resolves to it through the cache.
		gh := mp.b.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapStruct, Name: "grad." + def.Name})
		mp.cache[h] = gh
		fields := make([]wasmir.FieldDef, 0, len(def.Fields))
		for _, f := range def.Fields {
			if IsUnit(f.Type) {
				continue
			}
			gt, err := mp.mapLocked(f.Type)
			if err != nil {
				return 0, err
			}
			fields = append(fields, wasmir.FieldDef{
				Type:    gt,
				Mutable: f.Mutable || BecomesMutable(f.Type),
			})
		}
		mp.b.SetHeap(gh, wasmir.HeapDef{Kind: wasmir.HeapStruct, Name: "grad." + def.Name, Fields: fields})
		return gh, nil

	case wasmir.HeapArray:
		if IsUnit(def.Elem) {
			gh := mp.b.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapStruct, Name: "grad." + def.Name})
			mp.cache[h] = gh
			return gh, nil
		}
		gh := mp.b.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapArray, Name: "grad." + def.Name})
		mp.cache[h] = gh
		ge, err := mp.mapLocked(def.Elem)
		if err != nil {
			return 0, err
		}
		mp.b.SetHeap(gh, wasmir.HeapDef{
			Kind:        wasmir.HeapArray,
			Name:        "grad." + def.Name,
			Elem:        ge,
			ElemMutable: def.ElemMutable || BecomesMutable(def.Elem),
		})
		return gh, nil

	default:
		return 0, adcode.NewFunc(adcode.UnsupportedType, "", "unknown heap kind")
	}
}
