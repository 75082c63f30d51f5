package program

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
)

type programFile struct {
	ScratchTemp *int        `yaml:"scratch_temp"`
	ResultSlots int         `yaml:"result_slots"`
	Blocks      []blockFile `yaml:"blocks"`
}

type blockFile struct {
	Label        string     `yaml:"label"`
	BranchTarget bool       `yaml:"branch_target"`
	Instructions []instFile `yaml:"instructions"`
}

type instFile struct {
	Words  string   `yaml:"words"`
	Result []string `yaml:"result"`
	Input  *bool    `yaml:"input"`
}

var slotByName = map[string]instr.Slot{
	"dst":  instr.SlotDst,
	"src0": instr.SlotSrc0,
	"src1": instr.SlotSrc1,
	"src2": instr.SlotSrc2,
}

// LoadProgramFromYAML reads a program from a YAML file.
func LoadProgramFromYAML(path string, f config.Features) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseProgram(data, f)
}

// ParseProgram decodes a YAML program. Instructions are marked as coming from
// the input program unless they say otherwise. The program is not committed.
func ParseProgram(data []byte, f config.Features) (*Program, error) {
	return ParseProgramWith(data, MakeBuilder().WithFeatures(f))
}

// ParseProgramWith is ParseProgram starting from b. Settings in the file
// override the builder's.
func ParseProgramWith(data []byte, b Builder) (*Program, error) {
	var pf programFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse program: %w", err)
	}

	f := b.features
	if pf.ResultSlots > 0 {
		b = b.WithResultSlots(pf.ResultSlots)
	}

	if pf.ScratchTemp != nil {
		limit := instr.MaxNumber(instr.RegTemp, instr.FCNone, f)
		if *pf.ScratchTemp < 0 || *pf.ScratchTemp > limit {
			return nil, fmt.Errorf("scratch_temp %d: want 0..%d", *pf.ScratchTemp, limit)
		}

		b = b.WithScratchTemp(*pf.ScratchTemp)
	}

	p := b.Build()

	for i, bf := range pf.Blocks {
		label := bf.Label
		if label == "" {
			label = fmt.Sprintf("b%d", i)
		}

		blk := p.NewBlock(label, len(bf.Instructions))
		blk.BranchTarget = bf.BranchTarget

		for j, inf := range bf.Instructions {
			meta, err := inf.meta()
			if err != nil {
				return nil, fmt.Errorf("block %s instruction %d: %w", label, j, err)
			}

			r, err := instr.ParseRaw(inf.Words)
			if err != nil {
				return nil, fmt.Errorf("block %s instruction %d: %w", label, j, err)
			}

			if _, err := blk.AppendRaw(r, meta); err != nil {
				return nil, fmt.Errorf("instruction %d: %w", j, err)
			}
		}
	}

	return p, nil
}

func (inf instFile) meta() (Meta, error) {
	m := Meta{FromInput: true}
	if inf.Input != nil {
		m.FromInput = *inf.Input
	}

	for _, name := range inf.Result {
		slot, ok := slotByName[name]
		if !ok {
			return m, fmt.Errorf("unknown operand %q", name)
		}

		m.ResultOperands = m.ResultOperands.With(slot)
	}

	return m, nil
}
