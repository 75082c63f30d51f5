package instr

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/unipatch/config"
)

// RepeatMode is how the repeat field of an instruction is read.
type RepeatMode int

// Repeat modes.
const (
	RepeatNone RepeatMode = iota
	RepeatCount
	RepeatMask
	RepeatFetch
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatCount:
		return "count"
	case RepeatMask:
		return "mask"
	case RepeatFetch:
		return "fetch"
	default:
		return fmt.Sprintf("RepeatMode(%d)", int(m))
	}
}

// MaxRepeat returns the largest repeat count (or fetch count) of op on the
// given variant.
func MaxRepeat(op Opcode, f config.Features) int {
	if !op.Valid() {
		return 0
	}

	info := &opTable[op]

	limit := f.MaxRepeat
	if info.repeat == repeatFetch {
		limit = f.MaxFetchCount
	}

	return min(info.maxRepeat, limit)
}

// DecodeRepeat reads the repeat field. For RepeatMask the returned value is
// the mask, otherwise it is the number of iterations.
func DecodeRepeat(r Raw, op Opcode, f config.Features) (RepeatMode, int, error) {
	if !op.Valid() {
		return RepeatNone, 0, decodeErr(r, "op", uint32(op), "undefined opcode")
	}

	family := opTable[op].repeat
	if family == repeatNone {
		return RepeatNone, 1, nil
	}

	sel := fieldRCntSel.getBool(r)
	v := fieldRMskCnt.get(r)
	limit := MaxRepeat(op, f)

	if sel {
		if family != repeatMask {
			return RepeatNone, 0, decodeErr(r, "rcntsel", 1,
				fmt.Sprintf("%s has no repeat mask", op))
		}

		if v == 0 {
			return RepeatNone, 0, decodeErr(r, "repeat mask", v, "empty mask")
		}

		if bits.Len32(v) > limit {
			return RepeatNone, 0, decodeErr(r, "repeat mask", v,
				fmt.Sprintf("reaches past repeat %d", limit))
		}

		return RepeatMask, int(v), nil
	}

	count := int(v) + 1
	if count > limit {
		return RepeatNone, 0, decodeErr(r, "repeat count", uint32(count),
			fmt.Sprintf("%s allows at most %d", op, limit))
	}

	if family == repeatFetch {
		return RepeatFetch, count, nil
	}

	return RepeatCount, count, nil
}

// EncodeRepeat writes the repeat field of op. Opcodes without repeat support
// accept only RepeatNone with a value of 1 and leave the bits alone.
func EncodeRepeat(
	r Raw,
	op Opcode,
	mode RepeatMode,
	value int,
	f config.Features,
) (Raw, error) {
	if !op.Valid() {
		return r, encodeErr(op, SlotNone, "op", uint32(op), "undefined opcode")
	}

	family := opTable[op].repeat
	limit := MaxRepeat(op, f)

	fail := func(msg string) (Raw, error) {
		return r, encodeErr(op, SlotNone, "repeat "+mode.String(), uint32(value), msg)
	}

	switch mode {
	case RepeatNone:
		if family != repeatNone || value != 1 {
			return fail("opcode repeats")
		}

		return r, nil
	case RepeatCount, RepeatFetch:
		want := repeatCount
		if mode == RepeatFetch {
			want = repeatFetch
		}

		if family != want && !(family == repeatMask && mode == RepeatCount) {
			return fail("wrong repeat family")
		}

		if value < 1 || value > limit {
			return fail(fmt.Sprintf("want 1..%d", limit))
		}

		r = fieldRCntSel.set(r, 0)

		return fieldRMskCnt.set(r, uint32(value-1)), nil
	case RepeatMask:
		if family != repeatMask {
			return fail("opcode has no repeat mask")
		}

		if value <= 0 || value > int(fieldRMskCnt.max()) ||
			bits.Len32(uint32(value)) > limit {
			return fail("mask out of range")
		}

		r = fieldRCntSel.set(r, 1)

		return fieldRMskCnt.set(r, uint32(value)), nil
	default:
		return fail("undefined repeat mode")
	}
}

// RepeatIterations lists the iteration numbers an instruction executes.
func RepeatIterations(mode RepeatMode, value int) []int {
	if mode == RepeatMask {
		var its []int

		for i := 0; i < bits.Len32(uint32(value)); i++ {
			if value&(1<<i) != 0 {
				its = append(its, i)
			}
		}

		return its
	}

	if value < 1 {
		value = 1
	}

	its := make([]int, value)
	for i := range its {
		its[i] = i
	}

	return its
}
