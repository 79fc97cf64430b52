package checkpoint

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/errors"
	"github.com/driftlang/drift/runtime"
)

// decoder reads the checkpoint wire form. arena collects reference
// values in encounter order; containers are registered before their
// contents are decoded so back-references can close cycles.
type decoder struct {
	data    []byte
	off     int
	arena   []any
	prog    *compiler.Program // nil when inspecting without a program
	maxLen  int
	version string
}

// closureStub stands in for a function value when decoding without a
// program, as Inspect does.
type closureStub struct {
	name string
}

func (d *decoder) decode() (*runtime.Snapshot, error) {
	head, err := d.bytes(len(magic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(head, magic[:]) {
		return nil, errors.CorruptData("bad magic %q", head)
	}
	if d.version, err = d.str(); err != nil {
		return nil, err
	}
	if err := checkVersion(d.version); err != nil {
		return nil, err
	}

	snap := &runtime.Snapshot{}
	fp, err := d.bytes(8)
	if err != nil {
		return nil, err
	}
	snap.Fingerprint = binary.LittleEndian.Uint64(fp)

	if snap.Op, err = d.str(); err != nil {
		return nil, err
	}
	nargs, err := d.count("pending args")
	if err != nil {
		return nil, err
	}
	snap.Args = make([]any, nargs)
	for i := range snap.Args {
		if snap.Args[i], err = d.value(); err != nil {
			return nil, err
		}
	}

	nframes, err := d.count("frames")
	if err != nil {
		return nil, err
	}
	snap.Frames = make([]runtime.FrameState, nframes)
	for i := range snap.Frames {
		if err := d.frame(&snap.Frames[i]); err != nil {
			return nil, err
		}
	}

	if d.off != len(d.data) {
		return nil, errors.CorruptData("%d trailing bytes after chain", len(d.data)-d.off)
	}
	return snap, nil
}

func (d *decoder) frame(fs *runtime.FrameState) error {
	var err error
	if fs.Func, err = d.str(); err != nil {
		return err
	}
	pc, err := d.uvarint()
	if err != nil {
		return err
	}
	argc, err := d.uvarint()
	if err != nil {
		return err
	}
	fs.PC = int(pc)
	fs.Argc = int(argc)

	nregs, err := d.count("frame registers")
	if err != nil {
		return err
	}
	fs.Regs = make(map[uint32]any, nregs)
	for i := uint64(0); i < nregs; i++ {
		reg, err := d.uvarint()
		if err != nil {
			return err
		}
		if fs.Regs[uint32(reg)], err = d.value(); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) value() (any, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNil:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagInt:
		return d.varint()
	case tagFloat:
		raw, err := d.bytes(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	case tagString:
		return d.str()
	case tagList:
		n, err := d.count("list")
		if err != nil {
			return nil, err
		}
		list := &runtime.List{}
		d.arena = append(d.arena, list)
		for i := uint64(0); i < n; i++ {
			elem, err := d.value()
			if err != nil {
				return nil, err
			}
			list.Elems = append(list.Elems, elem)
		}
		return list, nil
	case tagMap:
		m := &runtime.Map{Entries: map[string]any{}}
		d.arena = append(d.arena, m)
		if err := d.fields(m.Entries); err != nil {
			return nil, err
		}
		return m, nil
	case tagObject:
		obj := &runtime.Object{Fields: map[string]any{}}
		d.arena = append(d.arena, obj)
		if obj.Class, err = d.str(); err != nil {
			return nil, err
		}
		if err := d.fields(obj.Fields); err != nil {
			return nil, err
		}
		return obj, nil
	case tagClosure:
		return d.closure()
	case tagCell:
		cell := &runtime.Cell{}
		d.arena = append(d.arena, cell)
		if cell.V, err = d.value(); err != nil {
			return nil, err
		}
		return cell, nil
	case tagRef:
		idx, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if idx >= uint64(len(d.arena)) {
			return nil, errors.CorruptData("back-reference %d outside arena of %d", idx, len(d.arena))
		}
		return d.arena[idx], nil
	default:
		return nil, errors.CorruptData("unknown value tag %d at offset %d", tag, d.off-1)
	}
}

func (d *decoder) closure() (any, error) {
	if d.prog == nil {
		stub := &closureStub{}
		d.arena = append(d.arena, stub)
		var err error
		if stub.name, err = d.str(); err != nil {
			return nil, err
		}
		return stub, d.skipEnv()
	}

	cl := &runtime.Closure{}
	d.arena = append(d.arena, cl)
	name, err := d.str()
	if err != nil {
		return nil, err
	}
	cl.Fn = d.prog.ProtoByName(name)
	if cl.Fn == nil {
		return nil, errors.ProgramMismatch("closure function %q no longer exists", name)
	}
	n, err := d.count("closure environment")
	if err != nil {
		return nil, err
	}
	if int(n) != cl.Fn.NumCaptures {
		return nil, errors.CorruptData("closure %q has %d captures, checkpoint carries %d",
			name, cl.Fn.NumCaptures, n)
	}
	for i := uint64(0); i < n; i++ {
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		cell, ok := v.(*runtime.Cell)
		if !ok {
			return nil, errors.CorruptData("closure %q capture %d is not a cell", name, i)
		}
		cl.Env = append(cl.Env, cell)
	}
	return cl, nil
}

func (d *decoder) skipEnv() error {
	n, err := d.count("closure environment")
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		if _, err := d.value(); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) fields(m map[string]any) error {
	n, err := d.count("fields")
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		k, err := d.str()
		if err != nil {
			return err
		}
		if m[k], err = d.value(); err != nil {
			return err
		}
	}
	return nil
}

// count reads a length prefix and bounds it by both the collection
// limit and the bytes actually remaining.
func (d *decoder) count(what string) (uint64, error) {
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.maxLen) {
		return 0, errors.CorruptData("%s length %d exceeds limit %d", what, n, d.maxLen)
	}
	if n > uint64(len(d.data)-d.off) {
		return 0, errors.CorruptData("%s length %d exceeds remaining input", what, n)
	}
	return n, nil
}

func (d *decoder) byte() (byte, error) {
	if d.off >= len(d.data) {
		return 0, errors.CorruptData("truncated at offset %d", d.off)
	}
	b := d.data[d.off]
	d.off++
	return b, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n > len(d.data)-d.off {
		return nil, errors.CorruptData("truncated at offset %d (want %d bytes)", d.off, n)
	}
	out := d.data[d.off : d.off+n]
	d.off += n
	return out, nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.data[d.off:])
	if n <= 0 {
		return 0, errors.CorruptData("bad varint at offset %d", d.off)
	}
	d.off += n
	return v, nil
}

func (d *decoder) varint() (int64, error) {
	v, n := binary.Varint(d.data[d.off:])
	if n <= 0 {
		return 0, errors.CorruptData("bad varint at offset %d", d.off)
	}
	d.off += n
	return v, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.uvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(len(d.data)-d.off) {
		return "", errors.CorruptData("string length %d exceeds remaining input", n)
	}
	s := string(d.data[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}
