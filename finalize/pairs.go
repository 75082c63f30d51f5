package finalize

import (
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
)

// physicalPrev returns the instruction stored right before inst, ignoring
// branch targets.
func physicalPrev(inst *program.Instruction) *program.Instruction {
	if p := inst.Prev(); p != nil {
		return p
	}

	for b := inst.Block().Prev(); b != nil; b = b.Prev() {
		if last := b.Last(); last != nil {
			return last
		}
	}

	return nil
}

// illegalPair reports whether a and b may not share a scheduling group.
func illegalPair(a, b *program.Instruction) bool {
	if a.Op.IsFlowControl() && b.Op.IsFlowControl() {
		return true
	}

	return instr.WritesLink(a.Op, a.Raw) && instr.WritesLink(b.Op, b.Raw)
}

// fixIllegalPairs inserts a no-op in front of every instruction that would
// otherwise share its scheduling group with an incompatible predecessor.
func (f *Finalizer) fixIllegalPairs(b *program.Block) error {
	g := f.features.PairGranularity()
	if g < 2 {
		return nil
	}

	addr := b.StartAddress()

	for inst := b.First(); inst != nil; inst = inst.Next() {
		prev := physicalPrev(inst)

		if prev != nil && addr%g != 0 && illegalPair(prev, inst) {
			if _, err := f.insertNop(inst, nopPlain, "illegal pair"); err != nil {
				return err
			}

			addr++
		}

		addr++
	}

	return nil
}
