// Package wirepb round-trips a *wasmir.Module through msgpack. It stands
// in for the real Wasm binary/text codec, which spec.md §1 places outside
// this repository's scope: the CLI reads and writes ".wgm" files (this
// codec's own container, not a real .wasm binary) via Encode/Decode.
//
// Grounded on the teacher's internal/driver package, which persists its
// on-disk module cache through github.com/vmihailenco/msgpack/v5
// (dcache.go's DiskCache.Put/Get).
package wirepb

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"wasmgrad/internal/wasmir"
)

// wireModule mirrors wasmir.Module's shape for serialization, dropping the
// FuncByName lookup index (rebuilt on decode) since it is derived state,
// not part of the module's own data.
type wireModule struct {
	Funcs     []*wasmir.Func
	Heaps     []wasmir.HeapDef
	RecGroups [][]wasmir.HeapID
	Features  wasmir.FeatureSet
}

// Encode serializes m into the msgpack-based .wgm container format.
func Encode(m *wasmir.Module) ([]byte, error) {
	w := wireModule{
		Funcs:     m.Funcs,
		Heaps:     m.Heaps,
		RecGroups: m.RecGroups,
		Features:  m.Features,
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes a .wgm container back into a *wasmir.Module,
// rebuilding the name lookup index that Encode does not persist.
func Decode(data []byte) (*wasmir.Module, error) {
	var w wireModule
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return nil, err
	}
	m := wasmir.NewModule(w.Features)
	m.Heaps = w.Heaps
	m.RecGroups = w.RecGroups
	for _, f := range w.Funcs {
		m.AddFunc(f)
	}
	return m, nil
}
