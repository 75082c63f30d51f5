package finalize

import (
	"fmt"

	"github.com/sarchlab/unipatch/program"
)

// checkForcedDeschedules fails when internal registers are live after an
// instruction that always deschedules. The scan covers the joined range that
// ends with b, because the sync start pass may flag the last instruction of an
// earlier block.
func (f *Finalizer) checkForcedDeschedules(b *program.Block) error {
	live, err := program.ComputeLiveness(b.Program())
	if err != nil {
		return err
	}

	for inst := b.Last(); inst != nil; inst = inst.PrevJoined() {
		if !inst.Desc.Has(program.FlagForcesDeschedule) {
			continue
		}

		if regs := live.After(inst); regs != 0 {
			return fmt.Errorf("%w: block %s: %s leaves %s live",
				ErrLiveAcrossDeschedule, inst.Block().Label, inst.Op, regs)
		}
	}

	return nil
}

// fixNoSched protects every instruction that has internal registers live
// before it. The instruction D places back along the joined list gets
// NOSCHED, or D NOSCHED no-ops are inserted so that one of them lands there.
func (f *Finalizer) fixNoSched(b *program.Block) error {
	d := f.features.NoSchedDistance()

	live, err := program.ComputeLiveness(b.Program())
	if err != nil {
		return err
	}

	for inst := b.First(); inst != nil; inst = inst.Next() {
		if live.Before(inst) == 0 {
			continue
		}

		inserted, err := f.protect(inst, d, live)
		if err != nil {
			return fmt.Errorf("block %s: %w", b.Label, err)
		}

		if inserted {
			live, err = program.ComputeLiveness(b.Program())
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// protect makes the deschedule point d instructions before inst safe. It
// reports whether instructions were inserted.
func (f *Finalizer) protect(
	inst *program.Instruction,
	d int,
	live *program.Liveness,
) (bool, error) {
	if c := back(inst, d); c != nil {
		if c.Desc.Has(program.FlagNoSched) {
			return false, nil
		}

		if c.Desc.Has(program.FlagSupportsNoSched) {
			return false, f.setFlag(c, "nosched")
		}
	}

	at := back(inst, d-1)

	switch {
	case at == nil:
		return false, fmt.Errorf("%w: nothing precedes %s", ErrUnprotectable, inst.Op)
	case live.Before(at) != 0:
		return false, fmt.Errorf("%w: %s is inside the live range of %s",
			ErrUnprotectable, at.Op, live.Before(at))
	case at.Desc.Has(program.FlagForcesDeschedule):
		return false, fmt.Errorf("%w: %s forces a deschedule", ErrUnprotectable, at.Op)
	}

	if prev := at.PrevJoined(); prev != nil && prev.Desc.Has(program.FlagSyncStart) {
		return false, fmt.Errorf("%w: %s follows a sync start", ErrUnprotectable, at.Op)
	}

	for i := 0; i < d; i++ {
		if _, err := f.insertNop(at, nopNoSched, "no sched"); err != nil {
			return false, err
		}
	}

	return true, nil
}
