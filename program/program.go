// Package program holds a USE program as a list of blocks, each a doubly
// linked list of instructions in a pre-sized pool.
package program

import (
	"fmt"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/moe"
)

// Program is an ordered list of blocks that share a feature descriptor and a
// result tracker.
type Program struct {
	Features config.Features
	Results  ResultTracker

	// ScratchTemp is the temporary register that defect fixes may clobber.
	ScratchTemp int

	first     *Block
	last      *Block
	numBlocks int
}

// Builder can build programs.
type Builder struct {
	features    config.Features
	results     ResultTracker
	resultSlots int
	scratchTemp int
}

// MakeBuilder returns a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		features:    config.MakeFeatureBuilder().Build(),
		resultSlots: 8,
		scratchTemp: -1,
	}
}

// WithFeatures sets the hardware variant.
func (b Builder) WithFeatures(f config.Features) Builder {
	b.features = f
	return b
}

// WithResultTracker sets the tracker of result references.
func (b Builder) WithResultTracker(t ResultTracker) Builder {
	b.results = t
	return b
}

// WithResultSlots sets the size of the default result pool.
func (b Builder) WithResultSlots(n int) Builder {
	b.resultSlots = n
	return b
}

// WithScratchTemp sets the temporary register available to defect fixes. By
// default the highest plain temporary is used.
func (b Builder) WithScratchTemp(n int) Builder {
	b.scratchTemp = n
	return b
}

// Build creates an empty program.
func (b Builder) Build() *Program {
	p := &Program{
		Features:    b.features,
		Results:     b.results,
		ScratchTemp: b.scratchTemp,
	}

	if p.Results == nil {
		p.Results = NewResultPool(b.resultSlots)
	}

	maxTemp := instr.MaxNumber(instr.RegTemp, instr.FCNone, b.features)
	if p.ScratchTemp < 0 {
		p.ScratchTemp = maxTemp
	}

	if p.ScratchTemp > maxTemp {
		panic(fmt.Sprintf("scratch temporary %d is above %d", p.ScratchTemp, maxTemp))
	}

	return p
}

// NewBlock appends an empty block sized for n original instructions.
func (p *Program) NewBlock(label string, n int) *Block {
	b := newBlock(p, label, BlockCapacity(n))

	if p.last != nil {
		exit := p.last.Exit()
		b.Entry = moe.InitialForBlock(&exit)
		b.prev = p.last
		p.last.next = b
	} else {
		b.Entry = moe.InitialForBlock(nil)
		p.first = b
	}

	p.last = b
	p.numBlocks++

	return b
}

// First returns the first block.
func (p *Program) First() *Block { return p.first }

// NumBlocks returns the number of blocks.
func (p *Program) NumBlocks() int { return p.numBlocks }

// Blocks lists the blocks in order.
func (p *Program) Blocks() []*Block {
	out := make([]*Block, 0, p.numBlocks)
	for b := p.first; b != nil; b = b.next {
		out = append(out, b)
	}

	return out
}

// Instructions lists every instruction in program order.
func (p *Program) Instructions() []*Instruction {
	var out []*Instruction

	for b := p.first; b != nil; b = b.next {
		out = append(out, b.Instructions()...)
	}

	return out
}

// Len returns the number of instructions in the program.
func (p *Program) Len() int {
	n := 0
	for b := p.first; b != nil; b = b.next {
		n += b.count
	}

	return n
}

// Words returns the encoded program.
func (p *Program) Words() []instr.Raw {
	out := make([]instr.Raw, 0, p.Len())
	for _, inst := range p.Instructions() {
		out = append(out, inst.Raw)
	}

	return out
}

// Addresses maps every instruction to its position in the program.
func (p *Program) Addresses() map[*Instruction]int {
	addrs := make(map[*Instruction]int, p.Len())

	addr := 0
	for b := p.first; b != nil; b = b.next {
		for inst := b.first; inst != nil; inst = inst.next {
			addrs[inst] = addr
			addr++
		}
	}

	return addrs
}

// Commit propagates modifier state across the blocks and records the current
// content of every block as the original program.
func (p *Program) Commit() {
	var prev *moe.State

	for b := p.first; b != nil; b = b.next {
		b.Entry = moe.InitialForBlock(prev)
		b.refresh()
		b.Commit()

		exit := b.Exit()
		prev = &exit
	}
}

// Reset resets every block.
func (p *Program) Reset() error {
	for b := p.first; b != nil; b = b.next {
		if err := b.Reset(); err != nil {
			return err
		}
	}

	return nil
}
