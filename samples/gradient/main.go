package main

import (
	"fmt"
	"log"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/unipatch/api"
	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
)

var (
	r2 = instr.Operand{Type: instr.RegTemp, Number: 2}
	r3 = instr.Operand{Type: instr.RegTemp, Number: 3}
	r4 = instr.Operand{Type: instr.RegTemp, Number: 4}
	i0 = instr.Operand{Type: instr.RegInternal, Number: 0}
)

func mustEncode(f config.Features, op instr.Opcode, operands map[instr.Slot]instr.Operand) instr.Raw {
	base, err := instr.EncodeOpcode(instr.Raw{}, op, f)
	if err != nil {
		log.Fatal(err)
	}

	mode, value, err := instr.DecodeRepeat(base, op, f)
	if err != nil {
		log.Fatal(err)
	}

	in := instr.Inst{Op: op, Repeat: mode, RepeatValue: value}
	for slot, d := range operands {
		in.Used = in.Used.With(slot)
		in.Operands[slot] = d
	}

	r, err := instr.Encode(base, in, instr.FCNone, f)
	if err != nil {
		log.Fatal(err)
	}

	return r
}

// buildShader makes a two-block program: the first block keeps a value in an
// internal register, the second is a branch target that starts with a
// gradient.
func buildShader(f config.Features) *program.Program {
	p := program.MakeBuilder().WithFeatures(f).Build()

	entry := p.NewBlock("entry", 2)
	loop := p.NewBlock("loop", 1)
	loop.BranchTarget = true

	add := func(b *program.Block, r instr.Raw) {
		if _, err := b.AppendRaw(r, program.Meta{FromInput: true}); err != nil {
			log.Fatal(err)
		}
	}

	add(entry, mustEncode(f, instr.OpFMAD, map[instr.Slot]instr.Operand{
		instr.SlotDst: i0, instr.SlotSrc0: r2, instr.SlotSrc1: r3, instr.SlotSrc2: r3,
	}))
	add(entry, mustEncode(f, instr.OpFMAD, map[instr.Slot]instr.Operand{
		instr.SlotDst: r4, instr.SlotSrc0: r2, instr.SlotSrc1: i0, instr.SlotSrc2: r3,
	}))
	add(loop, mustEncode(f, instr.OpFDSX, map[instr.Slot]instr.Operand{
		instr.SlotDst: r2, instr.SlotSrc1: r4,
	}))

	return p
}

func main() {
	for _, name := range []string{"sgx540", "sgx543"} {
		f, err := config.Variant(name)
		if err != nil {
			log.Fatal(err)
		}

		driver := api.MakeDriverBuilder().
			WithFeatures(f).
			Build("Driver")

		if err := driver.SetProgram(buildShader(f)); err != nil {
			log.Fatal(err)
		}

		if _, err := driver.Finalize(); err != nil {
			log.Fatal(err)
		}

		if err := driver.WriteListing(os.Stdout); err != nil {
			log.Fatal(err)
		}

		fmt.Println()
	}

	atexit.Exit(0)
}
