package compiler

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"
)

// Proto is one compiled function: a flat instruction list over a register
// file, plus the resume-point table the continuation runtime needs to
// capture and restore execution state at suspension sites.
type Proto struct {
	Name        string
	ID          uint32
	NumParams   int
	NumRegs     int
	NumCaptures int
	IsAsync     bool
	Code        []Instr
	Consts      []any

	// Resume maps the pc of each possibly-suspending call site to the
	// sorted set of registers live across it (the call's destination
	// register excluded; the resumed value lands there).
	Resume map[int][]uint32
}

// ResumePoint returns the capture set for a pc, and whether the pc is a
// valid suspension site.
func (p *Proto) ResumePoint(pc int) ([]uint32, bool) {
	regs, ok := p.Resume[pc]
	return regs, ok
}

// Program is a compiled unit: every function and closure, the host
// operations it may invoke, and a fingerprint identifying this exact
// compilation for checkpoint compatibility.
type Program struct {
	Protos []*Proto
	Ops    map[string]bool // operation name -> can suspend

	byName      map[string]*Proto
	fingerprint uint64
}

// Proto returns the compiled function with the given id.
func (p *Program) Proto(id uint32) (*Proto, error) {
	if int(id) >= len(p.Protos) {
		return nil, fmt.Errorf("function id %d out of range (program has %d)", id, len(p.Protos))
	}
	return p.Protos[id], nil
}

// ProtoByName returns the compiled function with the given name, or nil.
func (p *Program) ProtoByName(name string) *Proto {
	return p.byName[name]
}

// Fingerprint identifies this compiled program. Two programs with the
// same fingerprint have identical function tables, code, and resume
// metadata, so checkpoints taken against one can be restored against the
// other. Any recompilation that changes generated code changes the
// fingerprint.
func (p *Program) Fingerprint() uint64 {
	return p.fingerprint
}

func (p *Program) seal() {
	p.byName = make(map[string]*Proto, len(p.Protos))
	for _, proto := range p.Protos {
		p.byName[proto.Name] = proto
	}
	p.fingerprint = p.computeFingerprint()
}

func (p *Program) computeFingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeStr := func(s string) {
		writeU64(uint64(len(s)))
		h.Write([]byte(s))
	}

	writeU64(uint64(len(p.Protos)))
	for _, proto := range p.Protos {
		writeStr(proto.Name)
		writeU64(uint64(proto.NumParams))
		writeU64(uint64(proto.NumRegs))
		writeU64(uint64(proto.NumCaptures))
		writeU64(uint64(len(proto.Code)))
		for _, in := range proto.Code {
			writeU64(uint64(in.Op))
			writeU64(uint64(in.Dst))
			writeU64(uint64(in.A))
			writeU64(uint64(in.B))
			writeU64(uint64(int64(in.Target)))
			writeStr(in.Sym)
			writeU64(uint64(len(in.Args)))
			for _, a := range in.Args {
				writeU64(uint64(a))
			}
			for _, k := range in.Keys {
				writeStr(k)
			}
		}
		for _, c := range proto.Consts {
			writeStr(fmt.Sprintf("%T:%v", c, c))
		}

		pcs := make([]int, 0, len(proto.Resume))
		for pc := range proto.Resume {
			pcs = append(pcs, pc)
		}
		sort.Ints(pcs)
		for _, pc := range pcs {
			writeU64(uint64(pc))
			for _, r := range proto.Resume[pc] {
				writeU64(uint64(r))
			}
		}
	}

	ops := make([]string, 0, len(p.Ops))
	for name := range p.Ops {
		ops = append(ops, name)
	}
	sort.Strings(ops)
	for _, name := range ops {
		writeStr(name)
		if p.Ops[name] {
			writeU64(1)
		} else {
			writeU64(0)
		}
	}

	return h.Sum64()
}
