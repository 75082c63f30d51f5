package finalize

import (
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
)

// fixSyncStart makes sure the instruction before every gradient instruction
// carries SYNCSTART, inserting a no-op when the predecessor cannot.
func (f *Finalizer) fixSyncStart(b *program.Block) error {
	for inst := b.First(); inst != nil; inst = inst.Next() {
		if !instr.RequiresSyncStart(inst.Op, inst.Raw) {
			continue
		}

		prev := inst.PrevJoined()

		switch {
		case prev == nil:
		case prev.Desc.Has(program.FlagSyncStart):
			continue
		case prev.Desc.Has(program.FlagSupportsSyncStart):
			if err := f.setFlag(prev, "syncstart"); err != nil {
				return err
			}

			continue
		}

		if _, err := f.insertNop(inst, nopSyncStart, "sync start"); err != nil {
			return err
		}
	}

	return nil
}
