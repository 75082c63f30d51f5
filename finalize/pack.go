package finalize

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
)

func (f *Finalizer) fixGeneratedDefects(b *program.Block) error {
	return f.fixDefects(b, false)
}

// fixDefects applies the pack/unpack partial-write fix to the instructions of
// b whose input marker equals fromInput.
func (f *Finalizer) fixDefects(b *program.Block, fromInput bool) error {
	if !f.features.PackPartialWriteBug {
		return nil
	}

	for inst := b.First(); inst != nil; inst = inst.Next() {
		if inst.Desc.Has(program.FlagFromInput) != fromInput || !needsPackFix(inst) {
			continue
		}

		second, err := f.fixPack(inst)
		if err != nil {
			return fmt.Errorf("block %s: %w", b.Label, err)
		}

		inst = second
	}

	return nil
}

// needsPackFix matches a PCKUNPCK that converts F16 to U8 and writes only
// part of its destination.
func needsPackFix(inst *program.Instruction) bool {
	if inst.Op != instr.OpPCKUNPCK {
		return false
	}

	dst, src := instr.PackFormats(inst.Raw)
	mask := instr.WriteMask(inst.Raw)

	return src == instr.PackF16 && dst == instr.PackU8 &&
		mask != 0 && mask != instr.FullWriteMask
}

// fixPack retargets inst to write the whole scratch register and appends a
// U8 copy that performs the original partial write. It returns the copy.
func (f *Finalizer) fixPack(inst *program.Instruction) (*program.Instruction, error) {
	p := inst.Block().Program()
	fc := inst.Desc.FCM
	scratch := instr.Operand{Type: instr.RegTemp, Number: p.ScratchTemp}

	dst, err := inst.Operand(instr.SlotDst)
	if err != nil {
		return nil, err
	}

	if dst == scratch {
		return nil, fmt.Errorf("%w: %s writes the scratch register r%d",
			ErrPackFix, inst.Op, p.ScratchTemp)
	}

	mask := instr.WriteMask(inst.Raw)

	first, err := instr.EncodeOperand(inst.Raw, inst.Op, instr.SlotDst, fc, scratch, f.features)
	if err != nil {
		return nil, err
	}

	first, err = instr.WithWriteMask(first, instr.FullWriteMask)
	if err != nil {
		return nil, err
	}

	second, err := f.packCopy(inst, dst, scratch, mask)
	if err != nil {
		return nil, err
	}

	if err := inst.Rewrite(first); err != nil {
		return nil, err
	}

	f.InvokeHook(sim.HookCtx{
		Domain: f,
		Pos:    HookPosInstRewritten,
		Item:   inst,
		Detail: "pack fix",
	})

	meta := inst.Meta()
	moved := meta.ResultOperands & instr.OperandDst

	if moved != 0 {
		if err := inst.SetResultOperands(meta.ResultOperands &^ instr.OperandDst); err != nil {
			return nil, err
		}
	}

	copyInst, err := inst.Block().InsertRaw(inst.Next(), instr.OpPCKUNPCK, second,
		program.Meta{ResultOperands: moved, FromInput: meta.FromInput})
	if err != nil {
		return nil, fmt.Errorf("insert pack copy: %w", err)
	}

	Trace("pack fix", "block", inst.Block().Label, "scratch", p.ScratchTemp,
		"mask", mask)

	f.InvokeHook(sim.HookCtx{
		Domain: f,
		Pos:    HookPosNopInserted,
		Item:   copyInst,
		Detail: "pack fix",
	})

	return copyInst, nil
}

// packCopy builds a U8 to U8 PCKUNPCK that writes the masked bytes of dst
// from the scratch register. Sources alternate between the two scratch
// channels that hold the converted SRC1 and SRC2 values.
func (f *Finalizer) packCopy(
	inst *program.Instruction,
	dst, scratch instr.Operand,
	mask uint32,
) (instr.Raw, error) {
	r, err := instr.EncodeOpcode(instr.Raw{}, instr.OpPCKUNPCK, f.features)
	if err != nil {
		return r, err
	}

	r = instr.WithPackFormats(r, instr.PackU8, instr.PackU8)

	r, err = instr.WithWriteMask(r, mask)
	if err != nil {
		return r, err
	}

	r, err = r.WithPredicate(inst.Raw.Predicate())
	if err != nil {
		return r, err
	}

	src1, src2 := scratch, scratch
	src2.Component = 1

	operands := []struct {
		slot instr.Slot
		d    instr.Operand
	}{
		{instr.SlotDst, dst},
		{instr.SlotSrc1, src1},
		{instr.SlotSrc2, src2},
	}

	for _, o := range operands {
		r, err = instr.EncodeOperand(r, instr.OpPCKUNPCK, o.slot, inst.Desc.FCM, o.d, f.features)
		if err != nil {
			return r, err
		}
	}

	return r, nil
}
