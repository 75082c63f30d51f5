package program

import (
	"fmt"

	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/moe"
)

// DescFlag is a property of an instruction that the scheduling passes read.
type DescFlag uint16

// Descriptor flags.
const (
	FlagSupportsNoSched DescFlag = 1 << iota
	FlagSupportsSyncStart
	FlagSyncStart
	FlagNoSched
	FlagForcesDeschedule
	FlagPartialDestWrite
	FlagSupportsExtSrcBank
	FlagFromInput
)

// Desc is the decoded description of an instruction.
type Desc struct {
	Op             instr.Opcode
	Flags          DescFlag
	ResultOperands instr.OperandSet
	FCM            instr.FormatControl
}

// Has reports whether all of flags are set.
func (d Desc) Has(flags DescFlag) bool {
	return d.Flags&flags == flags
}

// Meta is what the caller knows about an instruction beyond its bits.
type Meta struct {
	// ResultOperands are the operands that refer to the shader result.
	ResultOperands instr.OperandSet

	// FromInput marks instructions taken from the precompiled input program.
	FromInput bool
}

// Instruction is one entry of a block. Instructions live in the block's pool
// and keep their address for the lifetime of the block.
type Instruction struct {
	Raw    instr.Raw
	Op     instr.Opcode
	Desc   Desc
	MOE    moe.State
	Result *ResultRef

	meta     Meta
	block    *Block
	prev     *Instruction
	next     *Instruction
	active   bool
	original bool
	origRaw  instr.Raw
	origMeta Meta
	slot     int
}

// Block returns the block that holds inst.
func (inst *Instruction) Block() *Block { return inst.block }

// Next returns the following instruction of the same block.
func (inst *Instruction) Next() *Instruction { return inst.next }

// Prev returns the preceding instruction of the same block.
func (inst *Instruction) Prev() *Instruction { return inst.prev }

// IsOriginal reports whether inst is part of the committed program.
func (inst *Instruction) IsOriginal() bool { return inst.original }

// Meta returns the caller-supplied metadata.
func (inst *Instruction) Meta() Meta { return inst.meta }

// PrevJoined returns the instruction that executes before inst, crossing into
// earlier blocks unless a branch target is in the way.
func (inst *Instruction) PrevJoined() *Instruction {
	if inst.prev != nil {
		return inst.prev
	}

	b := inst.block
	if b.BranchTarget {
		return nil
	}

	for p := b.prev; p != nil; p = p.prev {
		if p.last != nil {
			return p.last
		}

		if p.BranchTarget {
			return nil
		}
	}

	return nil
}

// NextJoined returns the instruction that executes after inst, crossing into
// later blocks unless the next non-empty block is reached through a branch
// target.
func (inst *Instruction) NextJoined() *Instruction {
	if inst.next != nil {
		return inst.next
	}

	for n := inst.block.next; n != nil; n = n.next {
		if n.BranchTarget {
			return nil
		}

		if n.first != nil {
			return n.first
		}
	}

	return nil
}

// MOEAfter returns the modifier state after inst executes.
func (inst *Instruction) MOEAfter() moe.State {
	s := inst.MOE
	moe.Apply(inst.Raw, inst.Op, &s)

	return s
}

// Rewrite replaces the bits of inst. The opcode must stay the same.
func (inst *Instruction) Rewrite(r instr.Raw) error {
	f := inst.block.prog.Features

	op, err := instr.DecodeOpcode(r, f)
	if err != nil {
		return err
	}

	if op != inst.Op {
		return fmt.Errorf("rewrite of %s would change it to %s", inst.Op, op)
	}

	if _, _, err := instr.DecodeRepeat(r, op, f); err != nil {
		return err
	}

	inst.Raw = r
	inst.describe()

	return nil
}

// SetNoSched sets the deschedule-disable flag.
func (inst *Instruction) SetNoSched() error {
	if !inst.Desc.Has(FlagSupportsNoSched) {
		return fmt.Errorf("%s cannot carry NOSCHED", inst.Op)
	}

	return inst.Rewrite(inst.Raw.WithNoSched(true))
}

// SetSyncStart sets the synchronisation-start flag. The instruction then
// forces a deschedule.
func (inst *Instruction) SetSyncStart() error {
	if !inst.Desc.Has(FlagSupportsSyncStart) {
		return fmt.Errorf("%s cannot carry SYNCSTART", inst.Op)
	}

	return inst.Rewrite(inst.Raw.WithSyncStart(true))
}

// SetResultOperands changes which operands refer to the shader result,
// reallocating the result reference.
func (inst *Instruction) SetResultOperands(ops instr.OperandSet) error {
	tracker := inst.block.prog.Results

	if inst.Result != nil {
		tracker.Release(inst.Result)
		inst.Result = nil
	}

	inst.meta.ResultOperands = ops
	inst.Desc.ResultOperands = ops

	if ops == 0 {
		return nil
	}

	ref, err := tracker.Track(inst, ops)
	if err != nil {
		return err
	}

	inst.Result = ref

	return nil
}

// Operand decodes one operand using the format control in effect.
func (inst *Instruction) Operand(slot instr.Slot) (instr.Operand, error) {
	return instr.DecodeOperand(inst.Raw, inst.Op, slot, inst.Desc.FCM,
		inst.Op.SupportsExtendedBanks(slot), inst.block.prog.Features)
}

// Decode decodes the whole instruction.
func (inst *Instruction) Decode() (instr.Inst, error) {
	return instr.Decode(inst.Raw, inst.Desc.FCM, inst.block.prog.Features)
}

func (inst *Instruction) describe() {
	f := inst.block.prog.Features
	op := inst.Op
	r := inst.Raw

	d := Desc{
		Op:             op,
		ResultOperands: inst.meta.ResultOperands,
		FCM:            moe.FormatControlFor(op, r, &inst.MOE, f),
	}

	set := func(flag DescFlag, v bool) {
		if v {
			d.Flags |= flag
		}
	}

	set(FlagSupportsNoSched, op.SupportsNoSched())
	set(FlagSupportsSyncStart, op.SupportsSyncStart())
	set(FlagSyncStart, r.SyncStart())
	set(FlagNoSched, r.NoSched())
	set(FlagForcesDeschedule, r.SyncStart() || op.Deschedules())
	set(FlagPartialDestWrite, instr.IsPartialWrite(op, r))
	set(FlagSupportsExtSrcBank,
		op.ExtendedBanks()&(instr.OperandSrc0|instr.OperandSrc1|instr.OperandSrc2) != 0)
	set(FlagFromInput, inst.meta.FromInput)

	inst.Desc = d
}
