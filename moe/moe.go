// Package moe models the modifier state that operand encodings read
// implicitly: per-slot increments or swizzles, base offsets and the two
// format-control enables.
package moe

import (
	"fmt"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
)

// Slot is the modifier state of one operand slot.
type Slot struct {
	// Swizzle selects swizzle mode. Otherwise each repeat iteration adds
	// Increment to the register number.
	Swizzle    bool
	Increment  int8
	Pattern    [4]uint8
	BaseOffset uint16
}

// State is the modifier state in effect before an instruction.
type State struct {
	Slots               [instr.NumSlots]Slot
	EFOFormatControl    bool
	ColourFormatControl bool
}

// Default returns the state of the hardware at the start of a program.
func Default() State {
	var s State
	for i := range s.Slots {
		s.Slots[i].Increment = 1
	}

	return s
}

// InitialForBlock returns the entry state of a block whose predecessor ended
// in prev. The first block of a program passes nil.
func InitialForBlock(prev *State) State {
	if prev == nil {
		return Default()
	}

	return *prev
}

// Apply updates s with the effect of one instruction. It does nothing for
// opcodes that are not modifier controls.
func Apply(r instr.Raw, op instr.Opcode, s *State) {
	switch op {
	case instr.OpSMLSI:
		for i := range s.Slots {
			v := uint8(r[0] >> (8 * uint(i)))
			slot := &s.Slots[i]

			slot.Swizzle = r[1]&(1<<uint(i)) != 0
			slot.Increment = 0
			slot.Pattern = [4]uint8{}

			if slot.Swizzle {
				for j := range slot.Pattern {
					slot.Pattern[j] = (v >> (2 * uint(j))) & 3
				}
			} else {
				slot.Increment = int8(v)
			}
		}
	case instr.OpSMBO:
		offsets := smboOffsets(r)
		for i := range s.Slots {
			s.Slots[i].BaseOffset = offsets[i]
		}
	case instr.OpSETFC:
		s.EFOFormatControl = r[1]&1 != 0
		s.ColourFormatControl = r[1]&2 != 0
	}
}

const offsetMask = 1<<12 - 1

func smboOffsets(r instr.Raw) [instr.NumSlots]uint16 {
	return [instr.NumSlots]uint16{
		uint16(r[0] & offsetMask),
		uint16((r[0] >> 12) & offsetMask),
		uint16(r[0]>>24 | (r[1]&0xF)<<8),
		uint16((r[1] >> 10) & offsetMask),
	}
}

// FormatControlFor returns the format control an instruction's operands are
// encoded with.
func FormatControlFor(
	op instr.Opcode,
	r instr.Raw,
	s *State,
	f config.Features,
) instr.FormatControl {
	switch {
	case op.IsEFOFamily():
		if s.EFOFormatControl {
			return instr.FCF32F16
		}
	case op.IsColourFamily():
		if s.ColourFormatControl {
			return instr.FCU8C10
		}
	case op.IsTestFamily():
		if !f.TestFormatControl {
			return instr.FCNone
		}

		switch instr.TestFormatSelect(r) {
		case 1:
			return instr.FCF32F16
		case 2:
			return instr.FCU8C10
		}
	}

	return instr.FCNone
}

// EncodeSMLSI builds an instruction that loads the increment or swizzle of
// every slot.
func EncodeSMLSI(slots [instr.NumSlots]Slot, f config.Features) (instr.Raw, error) {
	r, err := instr.EncodeOpcode(instr.Raw{}, instr.OpSMLSI, f)
	if err != nil {
		return r, err
	}

	for i, slot := range slots {
		var v uint32
		if slot.Swizzle {
			for j, p := range slot.Pattern {
				if p > 3 {
					return r, &instr.EncodeError{Op: instr.OpSMLSI, Slot: instr.Slot(i),
						Field: "swizzle", Value: uint32(p), Msg: "swizzle select is 2 bits"}
				}

				v |= uint32(p) << (2 * uint(j))
			}

			r[1] |= 1 << uint(i)
		} else {
			v = uint32(uint8(slot.Increment))
		}

		r[0] |= v << (8 * uint(i))
	}

	return r, nil
}

// EncodeSMBO builds an instruction that loads the base offset of every slot.
func EncodeSMBO(offsets [instr.NumSlots]uint16, f config.Features) (instr.Raw, error) {
	r, err := instr.EncodeOpcode(instr.Raw{}, instr.OpSMBO, f)
	if err != nil {
		return r, err
	}

	for i, off := range offsets {
		if off > offsetMask {
			return r, &instr.EncodeError{Op: instr.OpSMBO, Slot: instr.Slot(i),
				Field: "base offset", Value: uint32(off),
				Msg: fmt.Sprintf("larger than %d", offsetMask)}
		}
	}

	r[0] |= uint32(offsets[0]) | uint32(offsets[1])<<12 | uint32(offsets[2]&0xFF)<<24
	r[1] |= uint32(offsets[2]>>8) | uint32(offsets[3])<<10

	return r, nil
}

// EncodeSETFC builds an instruction that sets the two format-control enables.
func EncodeSETFC(efo, colour bool, f config.Features) (instr.Raw, error) {
	r, err := instr.EncodeOpcode(instr.Raw{}, instr.OpSETFC, f)
	if err != nil {
		return r, err
	}

	if efo {
		r[1] |= 1
	}

	if colour {
		r[1] |= 2
	}

	return r, nil
}

// Accessed expands a repeated operand into the register numbers it touches,
// one per iteration. Base offsets are not included.
func (s *State) Accessed(slot instr.Slot, number int, iterations []int) []int {
	if slot < instr.SlotDst || slot > instr.SlotSrc2 {
		return nil
	}

	st := &s.Slots[slot]
	out := make([]int, 0, len(iterations))

	for _, it := range iterations {
		n := number
		if st.Swizzle {
			n += int(st.Pattern[it%4])
		} else {
			n += it * int(st.Increment)
		}

		if n >= 0 {
			out = append(out, n)
		}
	}

	return out
}
