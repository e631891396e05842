// Package addriver implements the Driver (spec.md §5): the orchestrator
// that runs the Type Mapper, Tape Planner, and Forward/Backward Generator
// over every targeted function of a module, batching all planning ahead
// of any tape-struct or code generation so that mutually recursive
// callees' tape types can be built together in one recursion group, and
// staging every addition on a wasmir.Builder so a single failure aborts
// the whole transform with the module left untouched.
package addriver

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"wasmgrad/internal/adcode"
	"wasmgrad/internal/adconfig"
	"wasmgrad/internal/adgen"
	"wasmgrad/internal/gradtype"
	"wasmgrad/internal/tapeplan"
	"wasmgrad/internal/wasmir"
)

// Result reports the names generated for one transformed function.
type Result struct {
	Source  string
	FwdName string
	BwdName string
}

// Driver transforms a batch of functions in one module.
type Driver struct {
	// Parallel controls whether the independent per-function planning
	// phase runs concurrently. Planning has no shared mutable state
	// across functions (each writes only its own slot), so this is safe;
	// it defaults to true and only exists so tests can force serial
	// execution for deterministic error-ordering assertions.
	Parallel bool

	// Config governs which Wasm features Transform requires and what
	// suffix it mints generated names with; defaults to
	// adconfig.DefaultConfig() so callers that never touch Config see
	// the same behavior as before wasmgrad.toml existed.
	Config adconfig.Config
}

// New returns a Driver with its default settings.
func New() *Driver {
	return &Driver{Parallel: true, Config: adconfig.DefaultConfig()}
}

type funcState struct {
	orig     *wasmir.Func
	plan     *tapeplan.TapePlan
	tapeHeap wasmir.HeapID
	fwdName  string
	bwdName  string

	gradParams      wasmir.Tuple
	gradResults     wasmir.Tuple
	gradParamIndex  []int
}

// Transform differentiates every function named in targets (or every
// function in the module, if targets is empty) and commits the new
// F_fwd/F_bwd pairs into mod. On any error mod is left completely
// unmodified (spec.md §4.3's "no partial output" requirement).
func (d *Driver) Transform(mod *wasmir.Module, targets []string) ([]Result, error) {
	if missing := missingFeatures(mod.Features, d.Config.Transform); missing != "" {
		return nil, adcode.NewFunc(adcode.FeatureRequired, "", "module is missing required feature(s): "+missing)
	}

	funcs, err := resolveTargets(mod, targets)
	if err != nil {
		return nil, err
	}
	if len(funcs) == 0 {
		return nil, nil
	}

	b := wasmir.NewBuilder(mod)
	mapper := gradtype.NewMapper(mod, b)
	names := NewNameSet(mod.Names())

	states := make([]*funcState, len(funcs))
	for i, f := range funcs {
		gradParams, err := mapper.MapTuple(f.Params)
		if err != nil {
			return nil, err
		}
		gradResults, err := mapper.MapTuple(f.Results)
		if err != nil {
			return nil, err
		}
		gradParamIndex := make([]int, len(f.Params))
		slot := 0
		for pi, pt := range f.Params {
			if gradtype.IsUnit(pt) {
				gradParamIndex[pi] = -1
				continue
			}
			gradParamIndex[pi] = slot
			slot++
		}
		states[i] = &funcState{
			orig:           f,
			tapeHeap:       b.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapStruct, Name: f.Name + ".tape"}),
			fwdName:        names.Mint(f.Name, d.Config.Transform.NameSuffixFwd),
			bwdName:        names.Mint(f.Name, d.Config.Transform.NameSuffixBwd),
			gradParams:     gradParams,
			gradResults:    gradResults,
			gradParamIndex: gradParamIndex,
		}
	}

	if err := d.planAll(mod, mapper, states); err != nil {
		b.Discard()
		return nil, err
	}

	for _, st := range states {
		fields := make([]wasmir.FieldDef, len(st.plan.Fields))
		for i, fp := range st.plan.Fields {
			typ := fp.Type
			if fp.Role == tapeplan.FieldCall {
				callee, ok := lookupState(states, fp.CalleeName)
				if !ok {
					b.Discard()
					return nil, adcode.New(adcode.UnresolvedName, st.orig.Name, fp.Source, "call target \""+fp.CalleeName+"\" not found among transform targets")
				}
				typ = wasmir.Ref(callee.tapeHeap)
				st.plan.Fields[i].Type = typ
			}
			fields[i] = wasmir.FieldDef{Type: typ, Mutable: false}
		}
		b.SetHeap(st.tapeHeap, wasmir.HeapDef{Kind: wasmir.HeapStruct, Name: st.orig.Name + ".tape", Fields: fields})
	}

	group := make([]wasmir.HeapID, len(states))
	for i, st := range states {
		group[i] = st.tapeHeap
	}
	b.NewRecGroup(group...)

	callees := make(map[string]adgen.Callee, len(states))
	for _, st := range states {
		callees[st.orig.Name] = adgen.Callee{
			FwdName:         st.fwdName,
			BwdName:         st.bwdName,
			TapeHeap:        st.tapeHeap,
			ParamTypes:      st.orig.Params,
			ResultTypes:     st.orig.Results,
			GradParamTypes:  st.gradParams,
			GradResultTypes: st.gradResults,
			GradParamIndex:  st.gradParamIndex,
		}
	}

	results := make([]Result, len(states))
	for i, st := range states {
		if _, _, err := adgen.Generate(b, mod, st.orig, st.plan, mapper, st.tapeHeap, st.fwdName, st.bwdName, callees); err != nil {
			b.Discard()
			return nil, err
		}
		results[i] = Result{Source: st.orig.Name, FwdName: st.fwdName, BwdName: st.bwdName}
	}

	b.Commit()
	return results, nil
}

// planAll runs tapeplan.Plan for every targeted function. Each function's
// plan depends only on the original module (never on another function's
// plan), so the independent units run concurrently via errgroup the way
// this codebase's parallel diagnosis pipeline fans out per-file work.
func (d *Driver) planAll(mod *wasmir.Module, mapper *gradtype.Mapper, states []*funcState) error {
	if !d.Parallel || len(states) == 1 {
		for _, st := range states {
			plan, err := tapeplan.Plan(st.orig, mod, mapper)
			if err != nil {
				return err
			}
			st.plan = plan
		}
		return nil
	}

	var g errgroup.Group
	for _, st := range states {
		st := st
		g.Go(func() error {
			plan, err := tapeplan.Plan(st.orig, mod, mapper)
			if err != nil {
				return err
			}
			st.plan = plan
			return nil
		})
	}
	return g.Wait()
}

func resolveTargets(mod *wasmir.Module, targets []string) ([]*wasmir.Func, error) {
	if len(targets) == 0 {
		funcs := make([]*wasmir.Func, len(mod.Funcs))
		copy(funcs, mod.Funcs)
		return funcs, nil
	}
	funcs := make([]*wasmir.Func, 0, len(targets))
	for _, name := range targets {
		f, ok := mod.LookupFunc(name)
		if !ok {
			return nil, fmt.Errorf("addriver: target function %q not found in module", name)
		}
		funcs = append(funcs, f)
	}
	return funcs, nil
}

// missingFeatures reports, as a comma-joined string, which of the Wasm
// features tc marks as required (Multivalue, ReferenceTypes, GC; all
// three by spec.md §6's default) the module does not declare. Returns
// "" once every feature tc requires is present.
func missingFeatures(f wasmir.FeatureSet, tc adconfig.TransformConfig) string {
	var missing []string
	if tc.RequireMultivalue && !f.Multivalue {
		missing = append(missing, "multivalue")
	}
	if tc.RequireRefTypes && !f.ReferenceTypes {
		missing = append(missing, "reference-types")
	}
	if tc.RequireGC && !f.GC {
		missing = append(missing, "gc")
	}
	out := ""
	for i, m := range missing {
		if i > 0 {
			out += ", "
		}
		out += m
	}
	return out
}

func lookupState(states []*funcState, name string) (*funcState, bool) {
	for _, st := range states {
		if st.orig.Name == name {
			return st, true
		}
	}
	return nil, false
}
