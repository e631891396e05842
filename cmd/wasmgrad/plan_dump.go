package main

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"

	"wasmgrad/internal/gradtype"
	"wasmgrad/internal/tapeplan"
	"wasmgrad/internal/wasmir"
)

// dumpPlans prints each targeted function's tapeplan.TapePlan as a
// column-aligned table: field index, role, and source expression id.
// Planning here is read-only against mod (a scratch Builder absorbs any
// heap types gradtype.Mapper would otherwise stage, and is discarded),
// exactly mirroring the teacher's column-aligned diagnostic preview
// rendering via github.com/mattn/go-runewidth.
func dumpPlans(w io.Writer, mod *wasmir.Module, funcs []*wasmir.Func) error {
	scratch := wasmir.NewBuilder(mod)
	mapper := gradtype.NewMapper(mod, scratch)
	defer scratch.Discard()

	for _, f := range funcs {
		plan, err := tapeplan.Plan(f, mod, mapper)
		if err != nil {
			return fmt.Errorf("plan %s: %w", f.Name, err)
		}
		fmt.Fprintf(w, "-- %s: %d tape field(s)\n", f.Name, len(plan.Fields))
		if len(plan.Fields) == 0 {
			continue
		}
		rows := make([][3]string, len(plan.Fields))
		for i, fp := range plan.Fields {
			rows[i] = [3]string{fmt.Sprintf("%d", i), roleString(fp.Role), fmt.Sprintf("%d", fp.Source)}
		}
		widths := [3]int{5, 5, 6}
		for _, r := range rows {
			for c, cell := range r {
				if n := runewidth.StringWidth(cell); n > widths[c] {
					widths[c] = n
				}
			}
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", padTo("field", widths[0]), padTo("role", widths[1]), padTo("source", widths[2]))
		for _, r := range rows {
			fmt.Fprintf(w, "  %s  %s  %s\n", padTo(r[0], widths[0]), padTo(r[1], widths[1]), padTo(r[2], widths[2]))
		}
	}
	return nil
}

func padTo(s string, width int) string {
	n := runewidth.StringWidth(s)
	if n >= width {
		return s
	}
	return s + spaces(width-n)
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func roleString(r tapeplan.FieldRole) string {
	switch r {
	case tapeplan.FieldStore:
		return "store"
	case tapeplan.FieldGrad:
		return "grad"
	case tapeplan.FieldSet:
		return "set"
	case tapeplan.FieldCall:
		return "call"
	default:
		return "?"
	}
}
