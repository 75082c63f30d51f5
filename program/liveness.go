package program

import (
	"fmt"
	"strings"

	"github.com/sarchlab/unipatch/instr"
)

// RegSet is a set of internal registers.
type RegSet uint8

// Has reports whether register n is in s.
func (s RegSet) Has(n int) bool {
	return n >= 0 && n < 8 && s&(1<<uint(n)) != 0
}

// With returns s plus register n. Numbers outside the register file are
// ignored.
func (s RegSet) With(n int) RegSet {
	if n < 0 || n >= 8 {
		return s
	}

	return s | 1<<uint(n)
}

func (s RegSet) String() string {
	if s == 0 {
		return "-"
	}

	var names []string

	for n := 0; n < 8; n++ {
		if s.Has(n) {
			names = append(names, fmt.Sprintf("i%d", n))
		}
	}

	return strings.Join(names, ",")
}

// Liveness records which internal registers are live around each
// instruction.
type Liveness struct {
	before map[*Instruction]RegSet
	after  map[*Instruction]RegSet
}

// Before returns the internal registers live immediately before inst.
func (l *Liveness) Before(inst *Instruction) RegSet { return l.before[inst] }

// After returns the internal registers live immediately after inst.
func (l *Liveness) After(inst *Instruction) RegSet { return l.after[inst] }

// ComputeLiveness runs a backward scan over the program. Live registers flow
// from a block into its predecessor unless the block is a branch target, in
// which case the jump discards them.
func ComputeLiveness(p *Program) (*Liveness, error) {
	l := &Liveness{
		before: make(map[*Instruction]RegSet),
		after:  make(map[*Instruction]RegSet),
	}

	var live RegSet

	for b := p.last; b != nil; b = b.prev {
		for inst := b.last; inst != nil; inst = inst.prev {
			l.after[inst] = live

			uses, defs, err := InternalAccesses(inst)
			if err != nil {
				return nil, err
			}

			live = live&^defs | uses
			l.before[inst] = live
		}

		if b.BranchTarget {
			live = 0
		}
	}

	return l, nil
}

// InternalAccesses returns the internal registers inst reads and the ones it
// overwrites completely. Repeats are expanded through the modifier state.
func InternalAccesses(inst *Instruction) (uses, defs RegSet, err error) {
	f := inst.block.prog.Features

	mode, value, err := instr.DecodeRepeat(inst.Raw, inst.Op, f)
	if err != nil {
		return 0, 0, err
	}

	its := instr.RepeatIterations(mode, value)
	kills := inst.Raw.Predicate() == 0 && !inst.Desc.Has(FlagPartialDestWrite)

	for _, slot := range instr.OperandsUsed(inst.Op, inst.Raw).Slots() {
		d, err := inst.Operand(slot)
		if err != nil {
			return 0, 0, err
		}

		if d.Type != instr.RegInternal || d.Index != instr.IndexNone {
			continue
		}

		for _, n := range inst.MOE.Accessed(slot, d.Number, its) {
			if n >= f.NumInternalRegs {
				continue
			}

			if slot != instr.SlotDst {
				uses = uses.With(n)
			} else if kills {
				defs = defs.With(n)
			}
		}
	}

	return uses, defs, nil
}
