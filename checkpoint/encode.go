package checkpoint

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/driftlang/drift/errors"
	"github.com/driftlang/drift/runtime"
)

// encoder writes the checkpoint wire form. arena assigns each reference
// value an index on first encounter; repeats become back-references.
// path tracks the position in the value graph for error reporting.
type encoder struct {
	buf   []byte
	arena map[any]uint64
	path  []string
}

func (e *encoder) encode(snap *runtime.Snapshot) ([]byte, error) {
	e.buf = append(e.buf, magic[:]...)
	e.str(FormatVersion)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, snap.Fingerprint)

	e.str(snap.Op)
	e.uvarint(uint64(len(snap.Args)))
	for i, arg := range snap.Args {
		e.push("args", i)
		if err := e.value(arg); err != nil {
			return nil, err
		}
		e.pop()
	}

	e.uvarint(uint64(len(snap.Frames)))
	for i, f := range snap.Frames {
		e.push("frames", i)
		e.str(f.Func)
		e.uvarint(uint64(f.PC))
		e.uvarint(uint64(f.Argc))

		regs := make([]uint32, 0, len(f.Regs))
		for r := range f.Regs {
			regs = append(regs, r)
		}
		sort.Slice(regs, func(a, b int) bool { return regs[a] < regs[b] })
		e.uvarint(uint64(len(regs)))
		for _, r := range regs {
			e.uvarint(uint64(r))
			e.push("r", int(r))
			if err := e.value(f.Regs[r]); err != nil {
				return nil, err
			}
			e.pop()
		}
		e.pop()
	}
	return e.buf, nil
}

func (e *encoder) value(v any) error {
	switch v := v.(type) {
	case nil:
		e.buf = append(e.buf, tagNil)
	case bool:
		if v {
			e.buf = append(e.buf, tagTrue)
		} else {
			e.buf = append(e.buf, tagFalse)
		}
	case int64:
		e.buf = append(e.buf, tagInt)
		e.buf = binary.AppendVarint(e.buf, v)
	case float64:
		e.buf = append(e.buf, tagFloat)
		e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
	case string:
		e.buf = append(e.buf, tagString)
		e.str(v)
	case *runtime.List:
		if e.ref(v) {
			return nil
		}
		e.buf = append(e.buf, tagList)
		e.intern(v)
		e.uvarint(uint64(len(v.Elems)))
		for i, elem := range v.Elems {
			e.push("", i)
			if err := e.value(elem); err != nil {
				return err
			}
			e.pop()
		}
	case *runtime.Map:
		if e.ref(v) {
			return nil
		}
		e.buf = append(e.buf, tagMap)
		e.intern(v)
		if err := e.fields(v.Entries); err != nil {
			return err
		}
	case *runtime.Object:
		if e.ref(v) {
			return nil
		}
		e.buf = append(e.buf, tagObject)
		e.intern(v)
		e.str(v.Class)
		if err := e.fields(v.Fields); err != nil {
			return err
		}
	case *runtime.Closure:
		if e.ref(v) {
			return nil
		}
		e.buf = append(e.buf, tagClosure)
		e.intern(v)
		e.str(v.Fn.Name)
		e.uvarint(uint64(len(v.Env)))
		for i, cell := range v.Env {
			e.push("env", i)
			if err := e.value(cell); err != nil {
				return err
			}
			e.pop()
		}
	case *runtime.Cell:
		if e.ref(v) {
			return nil
		}
		e.buf = append(e.buf, tagCell)
		e.intern(v)
		if err := e.value(v.V); err != nil {
			return err
		}
	case *runtime.HostObj:
		return errors.Unencodable(append([]string(nil), e.path...),
			"opaque host value")
	default:
		return errors.Unencodable(append([]string(nil), e.path...),
			fmt.Sprintf("value of type %s", runtime.TypeName(v)))
	}
	return nil
}

// fields writes a string-keyed collection with sorted keys, so the same
// graph always encodes to the same bytes.
func (e *encoder) fields(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.uvarint(uint64(len(keys)))
	for _, k := range keys {
		e.str(k)
		e.path = append(e.path, k)
		if err := e.value(m[k]); err != nil {
			return err
		}
		e.pop()
	}
	return nil
}

// ref emits a back-reference if v is already in the arena.
func (e *encoder) ref(v any) bool {
	idx, ok := e.arena[v]
	if !ok {
		return false
	}
	e.buf = append(e.buf, tagRef)
	e.uvarint(idx)
	return true
}

func (e *encoder) intern(v any) {
	e.arena[v] = uint64(len(e.arena))
}

func (e *encoder) str(s string) {
	e.uvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) uvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *encoder) push(label string, i int) {
	if label == "" {
		e.path = append(e.path, fmt.Sprintf("%d", i))
	} else {
		e.path = append(e.path, fmt.Sprintf("%s[%d]", label, i))
	}
}

func (e *encoder) pop() {
	e.path = e.path[:len(e.path)-1]
}
