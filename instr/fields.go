package instr

import (
	"fmt"
	"math/bits"
)

// PackFormat is a data format of the pack/unpack unit.
type PackFormat uint32

// Pack formats, by their three-bit code.
const (
	PackU8 PackFormat = iota
	PackS8
	PackO8
	PackU16
	PackS16
	PackF16
	PackF32
	PackC10
)

var packFormatNames = [...]string{"u8", "s8", "o8", "u16", "s16", "f16", "f32", "c10"}

func (p PackFormat) String() string {
	if int(p) >= len(packFormatNames) {
		return fmt.Sprintf("PackFormat(%d)", uint32(p))
	}

	return packFormatNames[p]
}

// channels returns how many destination channels the format has.
func (p PackFormat) channels() int {
	switch p {
	case PackU16, PackS16, PackF16:
		return 2
	case PackF32:
		return 1
	default:
		return 4
	}
}

// FullWriteMask writes every destination byte.
const FullWriteMask = 0xF

// PackFormats returns the destination and source formats of a PCKUNPCK.
func PackFormats(r Raw) (dst, src PackFormat) {
	return PackFormat(fieldPackDstFmt.get(r)), PackFormat(fieldPackSrcFmt.get(r))
}

// WithPackFormats returns r with the PCKUNPCK formats set.
func WithPackFormats(r Raw, dst, src PackFormat) Raw {
	r = fieldPackDstFmt.set(r, uint32(dst))
	return fieldPackSrcFmt.set(r, uint32(src))
}

// PackScale reports whether PCKUNPCK scales normalised values.
func PackScale(r Raw) bool {
	return fieldPackScale.getBool(r)
}

// WithPackScale returns r with the PCKUNPCK scale bit set to v.
func WithPackScale(r Raw, v bool) Raw {
	return fieldPackScale.setBool(r, v)
}

// WriteMask returns the destination byte mask of PCKUNPCK and SOPWM.
func WriteMask(r Raw) uint32 {
	return fieldWriteMask.get(r)
}

// WithWriteMask returns r with the destination byte mask set.
func WithWriteMask(r Raw, mask uint32) (Raw, error) {
	if mask > FullWriteMask {
		return r, encodeErr(OpPCKUNPCK, SlotDst, "write mask", mask, "mask is 4 bits")
	}

	return fieldWriteMask.set(r, mask), nil
}

// IsPartialWrite reports whether an instruction with a destination write mask
// leaves part of its destination untouched.
func IsPartialWrite(op Opcode, r Raw) bool {
	return op.HasWriteMask() && WriteMask(r) != FullWriteMask
}

// packChannelsWritten counts the destination channels a PCKUNPCK writes.
func packChannelsWritten(r Raw) int {
	dst, _ := PackFormats(r)
	mask := WriteMask(r)

	switch dst.channels() {
	case 1:
		if mask != 0 {
			return 1
		}

		return 0
	case 2:
		n := 0
		for c := 0; c < 2; c++ {
			if mask&(3<<(2*c)) != 0 {
				n++
			}
		}

		return n
	default:
		return bits.OnesCount32(mask)
	}
}

// TestALU is the arithmetic operation of TEST and TESTMASK.
type TestALU uint32

// TEST arithmetic operations.
const (
	TestFADD TestALU = iota
	TestFSUB
	TestFMUL
	TestFMIN
	TestFMAX
	TestFRCP
	TestFRSQ
	TestFDSX
	TestFDSY
	TestAND
	TestOR
	TestXOR
	TestIADD
	TestISUB
	TestMOV
	testALUInvalid
)

// Unary reports whether the operation reads a single source.
func (a TestALU) Unary() bool {
	switch a {
	case TestFRCP, TestFRSQ, TestFDSX, TestFDSY, TestMOV:
		return true
	default:
		return false
	}
}

// Gradient reports whether the operation estimates a screen-space gradient.
func (a TestALU) Gradient() bool {
	return a == TestFDSX || a == TestFDSY
}

// TestOp returns the arithmetic operation of a TEST or TESTMASK.
func TestOp(r Raw) (TestALU, error) {
	a := TestALU(fieldTestALU.get(r))
	if a >= testALUInvalid {
		return a, decodeErr(r, "test alu", uint32(a), "undefined test operation")
	}

	return a, nil
}

// WithTestOp returns r with the TEST arithmetic operation set.
func WithTestOp(r Raw, a TestALU) (Raw, error) {
	if a >= testALUInvalid {
		return r, encodeErr(OpTEST, SlotNone, "test alu", uint32(a), "undefined test operation")
	}

	return fieldTestALU.set(r, uint32(a)), nil
}

// TestDestDisabled reports whether a TEST skips writing its destination.
func TestDestDisabled(r Raw) bool {
	return fieldTestDstOff.getBool(r)
}

// WithTestDestDisabled returns r with the TEST destination-disable bit set.
func WithTestDestDisabled(r Raw, v bool) Raw {
	return fieldTestDstOff.setBool(r, v)
}

// WithTestFormatSelect returns r with the TEST format select set. 1 selects
// f32/f16 and 2 selects u8/c10.
func WithTestFormatSelect(r Raw, sel uint32) (Raw, error) {
	if sel > 2 {
		return r, encodeErr(OpTEST, SlotNone, "test format", sel, "want 0..2")
	}

	return fieldTestFmt.set(r, sel), nil
}

// TestFormatSelect returns the raw TEST format select.
func TestFormatSelect(r Raw) uint32 {
	return fieldTestFmt.get(r)
}

// RequiresSyncStart reports whether the instruction before this one must
// carry the synchronisation-start flag.
func RequiresSyncStart(op Opcode, r Raw) bool {
	switch op {
	case OpFDSX, OpFDSY:
		return true
	case OpTEST, OpTESTMASK:
		return TestALU(fieldTestALU.get(r)).Gradient()
	default:
		return false
	}
}

// SaveLink reports whether a BA or BR also stores the return address.
func SaveLink(r Raw) bool {
	return fieldSaveLink.getBool(r)
}

// WithSaveLink returns r with the save-link bit set to v.
func WithSaveLink(r Raw, v bool) Raw {
	return fieldSaveLink.setBool(r, v)
}

// BranchTarget returns the instruction address of a branch.
func BranchTarget(r Raw) uint32 {
	return fieldBranchAddr.get(r)
}

// WithBranchTarget returns r with the branch address set.
func WithBranchTarget(r Raw, addr uint32) (Raw, error) {
	if addr > fieldBranchAddr.max() {
		return r, encodeErr(OpBA, SlotNone, "branch address", addr, "address is 20 bits")
	}

	return fieldBranchAddr.set(r, addr), nil
}

// WritesLink reports whether the instruction writes the link register.
func WritesLink(op Opcode, r Raw) bool {
	switch op {
	case OpSETL:
		return true
	case OpBA, OpBR:
		return SaveLink(r)
	default:
		return false
	}
}

// SOPFactors returns the blend factors applied to SRC1 and SRC2 of SOP2 and
// SOPWM. Zero is the ZERO factor.
func SOPFactors(r Raw) (uint32, uint32) {
	return fieldSOPFactor1.get(r), fieldSOPFactor2.get(r)
}

// WithSOPFactors returns r with the SOP2/SOPWM blend factors set.
func WithSOPFactors(r Raw, f1, f2 uint32) (Raw, error) {
	if f1 > fieldSOPFactor1.max() || f2 > fieldSOPFactor2.max() {
		return r, encodeErr(OpSOP2, SlotNone, "blend factor", max(f1, f2), "factor is 3 bits")
	}

	r = fieldSOPFactor1.set(r, f1)

	return fieldSOPFactor2.set(r, f2), nil
}

// WithIMA8NoAccumulate returns r with the IMA8 no-accumulate bit set to v.
func WithIMA8NoAccumulate(r Raw, v bool) Raw {
	return fieldIMA8NoAccum.setBool(r, v)
}

// WithIMAEMode returns r with the IMAE accumulator mode set. Zero means no
// accumulator.
func WithIMAEMode(r Raw, mode uint32) (Raw, error) {
	if mode > fieldIMAESrc2.max() {
		return r, encodeErr(OpIMAE, SlotNone, "imae mode", mode, "mode is 2 bits")
	}

	return fieldIMAESrc2.set(r, mode), nil
}

// WithDOT4 returns r with the DOT34 four-component bit set to v.
func WithDOT4(r Raw, v bool) Raw {
	return fieldDOT4.setBool(r, v)
}
