package program

import (
	"fmt"

	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/moe"
)

// FixupHeadroom is the number of pool entries reserved beyond twice the
// original instruction count.
const FixupHeadroom = 16

// BlockCapacity returns the pool size of a block holding n original
// instructions.
func BlockCapacity(n int) int {
	return 2*n + FixupHeadroom
}

// Block is an ordered run of instructions backed by a fixed-size pool.
type Block struct {
	Label string

	// BranchTarget is set when control can arrive at the first instruction
	// from somewhere other than the previous block.
	BranchTarget bool

	// Finalized is set by the finalizer and cleared by Reset.
	Finalized bool

	// Entry is the modifier state on entry to the block.
	Entry moe.State

	prog      *Program
	pool      []Instruction
	free      []int
	first     *Instruction
	last      *Instruction
	count     int
	exit      moe.State
	originals []*Instruction
	prev      *Block
	next      *Block
}

func newBlock(p *Program, label string, capacity int) *Block {
	b := &Block{
		Label: label,
		prog:  p,
		pool:  make([]Instruction, capacity),
		free:  make([]int, 0, capacity),
	}

	for i := capacity - 1; i >= 0; i-- {
		b.pool[i].slot = i
		b.free = append(b.free, i)
	}

	return b
}

// Program returns the program the block belongs to.
func (b *Block) Program() *Program { return b.prog }

// First returns the first instruction, or nil for an empty block.
func (b *Block) First() *Instruction { return b.first }

// Last returns the last instruction, or nil for an empty block.
func (b *Block) Last() *Instruction { return b.last }

// Len returns the number of instructions in the block.
func (b *Block) Len() int { return b.count }

// Capacity returns the size of the instruction pool.
func (b *Block) Capacity() int { return len(b.pool) }

// Next returns the following block.
func (b *Block) Next() *Block { return b.next }

// Prev returns the preceding block.
func (b *Block) Prev() *Block { return b.prev }

// Exit returns the modifier state at the end of the block.
func (b *Block) Exit() moe.State { return b.exit }

// Instructions lists the instructions in order.
func (b *Block) Instructions() []*Instruction {
	out := make([]*Instruction, 0, b.count)
	for inst := b.first; inst != nil; inst = inst.next {
		out = append(out, inst)
	}

	return out
}

// StartAddress returns the program address of the first instruction.
func (b *Block) StartAddress() int {
	addr := 0
	for p := b.prev; p != nil; p = p.prev {
		addr += p.count
	}

	return addr
}

// Append adds an instruction at the end of the block.
func (b *Block) Append(op instr.Opcode, r instr.Raw, meta Meta) (*Instruction, error) {
	return b.InsertRaw(nil, op, r, meta)
}

// AppendRaw decodes the opcode of r and appends it.
func (b *Block) AppendRaw(r instr.Raw, meta Meta) (*Instruction, error) {
	op, err := instr.DecodeOpcode(r, b.prog.Features)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", b.Label, err)
	}

	return b.InsertRaw(nil, op, r, meta)
}

// InsertRaw adds an instruction in front of before, or at the end when before
// is nil. The bits must decode to op.
func (b *Block) InsertRaw(
	before *Instruction,
	op instr.Opcode,
	r instr.Raw,
	meta Meta,
) (*Instruction, error) {
	if before != nil && (before.block != b || !before.active) {
		return nil, fmt.Errorf("block %s: insertion point is not in the block", b.Label)
	}

	f := b.prog.Features

	got, err := instr.DecodeOpcode(r, f)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", b.Label, err)
	}

	if got != op {
		return nil, fmt.Errorf("block %s: %s decodes as %s, not %s",
			b.Label, r, got, op)
	}

	if _, _, err := instr.DecodeRepeat(r, op, f); err != nil {
		return nil, fmt.Errorf("block %s: %w", b.Label, err)
	}

	if len(b.free) == 0 {
		return nil, &CapacityError{What: "block " + b.Label, Capacity: len(b.pool)}
	}

	idx := b.free[len(b.free)-1]
	b.free = b.free[:len(b.free)-1]

	inst := &b.pool[idx]
	*inst = Instruction{
		Raw:    r,
		Op:     op,
		meta:   meta,
		block:  b,
		active: true,
		slot:   idx,
	}

	b.link(inst, before)

	if inst.prev != nil {
		inst.MOE = inst.prev.MOEAfter()
	} else {
		inst.MOE = b.Entry
	}

	inst.describe()

	if meta.ResultOperands != 0 {
		ref, err := b.prog.Results.Track(inst, meta.ResultOperands)
		if err != nil {
			b.unlink(inst)
			inst.active = false
			b.free = append(b.free, idx)

			return nil, err
		}

		inst.Result = ref
	}

	if inst.next == nil {
		b.exit = inst.MOEAfter()
	}

	b.count++

	return inst, nil
}

// Remove unlinks inst from the block. The modifier state of later
// instructions is not recomputed.
func (b *Block) Remove(inst *Instruction) error {
	if inst.block != b || !inst.active {
		return fmt.Errorf("block %s: instruction is not in the block", b.Label)
	}

	b.unlink(inst)

	if inst.Result != nil {
		b.prog.Results.Release(inst.Result)
		inst.Result = nil
	}

	inst.active = false
	b.count--

	if !inst.original {
		b.free = append(b.free, inst.slot)
	}

	return nil
}

// Commit records the current content as the original program of the block.
func (b *Block) Commit() {
	for i := range b.pool {
		inst := &b.pool[i]
		if inst.original && !inst.active {
			inst.original = false
			b.free = append(b.free, i)
		}

		inst.original = false
	}

	b.originals = b.originals[:0]

	for inst := b.first; inst != nil; inst = inst.next {
		inst.original = true
		inst.origRaw = inst.Raw
		inst.origMeta = inst.meta
		b.originals = append(b.originals, inst)
	}
}

// Reset brings the block back to its committed content. Synthesized
// instructions are dropped and original bits, descriptors, modifier snapshots
// and result references are restored.
func (b *Block) Reset() error {
	for i := range b.pool {
		inst := &b.pool[i]
		if inst.Result != nil {
			b.prog.Results.Release(inst.Result)
			inst.Result = nil
		}
	}

	b.first, b.last, b.count = nil, nil, 0
	b.free = b.free[:0]

	for i := len(b.pool) - 1; i >= 0; i-- {
		inst := &b.pool[i]
		if !inst.original {
			inst.active = false
			inst.prev, inst.next = nil, nil
			b.free = append(b.free, i)
		}
	}

	s := b.Entry
	for _, inst := range b.originals {
		inst.Raw = inst.origRaw
		inst.meta = inst.origMeta
		inst.active = true
		b.link(inst, nil)
		b.count++

		inst.MOE = s
		inst.describe()
		moe.Apply(inst.Raw, inst.Op, &s)

		if inst.meta.ResultOperands != 0 {
			ref, err := b.prog.Results.Track(inst, inst.meta.ResultOperands)
			if err != nil {
				return fmt.Errorf("block %s: %w", b.Label, err)
			}

			inst.Result = ref
		}
	}

	b.exit = s
	b.Finalized = false

	return nil
}

// refresh recomputes the modifier snapshots and descriptors from Entry.
func (b *Block) refresh() {
	s := b.Entry
	for inst := b.first; inst != nil; inst = inst.next {
		inst.MOE = s
		inst.describe()
		moe.Apply(inst.Raw, inst.Op, &s)
	}

	b.exit = s
}

func (b *Block) link(inst, before *Instruction) {
	if before == nil {
		inst.prev = b.last
		inst.next = nil

		if b.last != nil {
			b.last.next = inst
		} else {
			b.first = inst
		}

		b.last = inst

		return
	}

	inst.next = before
	inst.prev = before.prev

	if before.prev != nil {
		before.prev.next = inst
	} else {
		b.first = inst
	}

	before.prev = inst
}

func (b *Block) unlink(inst *Instruction) {
	if inst.prev != nil {
		inst.prev.next = inst.next
	} else {
		b.first = inst.next
	}

	if inst.next != nil {
		inst.next.prev = inst.prev
	} else {
		b.last = inst.prev
	}

	inst.prev, inst.next = nil, nil
}
