package checkpoint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/driftlang/drift/config"
	"github.com/driftlang/drift/runtime"
)

// Summary describes a checkpoint without requiring the compiled program
// it was taken against. Captured values are rendered as previews, not
// reconstructed.
type Summary struct {
	FormatVersion string
	Fingerprint   uint64
	Op            string
	Args          []string
	Frames        []FrameSummary
}

// FrameSummary is one frame of the continuation chain, root first.
type FrameSummary struct {
	Func string
	PC   int
	Argc int
	Regs map[uint32]string
}

// Inspect parses checkpoint bytes into a Summary. Closures appear by
// function name only; their code lives in the program, not the
// checkpoint.
func Inspect(data []byte) (*Summary, error) {
	d := &decoder{data: data, maxLen: config.Default().MaxCollectionLen}
	snap, err := d.decode()
	if err != nil {
		return nil, err
	}

	s := &Summary{
		FormatVersion: d.version,
		Fingerprint:   snap.Fingerprint,
		Op:            snap.Op,
	}
	for _, arg := range snap.Args {
		s.Args = append(s.Args, preview(arg, map[any]bool{}))
	}
	for _, f := range snap.Frames {
		regs := make(map[uint32]string, len(f.Regs))
		for r, v := range f.Regs {
			regs[r] = preview(v, map[any]bool{})
		}
		s.Frames = append(s.Frames, FrameSummary{
			Func: f.Func,
			PC:   f.PC,
			Argc: f.Argc,
			Regs: regs,
		})
	}
	return s, nil
}

const previewElems = 8

// preview renders a value for display. seen guards reference cycles.
func preview(v any, seen map[any]bool) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return strconv.Quote(v)
	case *runtime.List:
		if seen[v] {
			return "[...]"
		}
		seen[v] = true
		var parts []string
		for i, elem := range v.Elems {
			if i == previewElems {
				parts = append(parts, fmt.Sprintf("+%d more", len(v.Elems)-previewElems))
				break
			}
			parts = append(parts, preview(elem, seen))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *runtime.Map:
		if seen[v] {
			return "{...}"
		}
		seen[v] = true
		return "{" + previewFields(v.Entries, seen) + "}"
	case *runtime.Object:
		if seen[v] {
			return v.Class + "{...}"
		}
		seen[v] = true
		return v.Class + "{" + previewFields(v.Fields, seen) + "}"
	case *runtime.Cell:
		if seen[v] {
			return "&..."
		}
		seen[v] = true
		return "&" + preview(v.V, seen)
	case *closureStub:
		return "<fn " + v.name + ">"
	case *runtime.Closure:
		return "<fn " + v.Fn.Name + ">"
	default:
		return fmt.Sprintf("<%s>", runtime.TypeName(v))
	}
}

func previewFields(m map[string]any, seen map[any]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for i, k := range keys {
		if i == previewElems {
			parts = append(parts, fmt.Sprintf("+%d more", len(keys)-previewElems))
			break
		}
		parts = append(parts, k+": "+preview(m[k], seen))
	}
	return strings.Join(parts, ", ")
}
