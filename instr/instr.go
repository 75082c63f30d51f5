// Package instr converts between USE instructions and their two-word binary
// encoding.
//
// Every function in this package is pure: a Raw is passed by value and a new
// Raw is returned. The hardware variant is described by a config.Features
// value supplied by the caller.
package instr

import "fmt"

// Raw is the binary form of one instruction: word 0 and word 1.
type Raw [2]uint32

// String prints the words as hexadecimal.
func (r Raw) String() string {
	return fmt.Sprintf("%08x:%08x", r[0], r[1])
}

// ParseRaw reads the form printed by Raw.String.
func ParseRaw(s string) (Raw, error) {
	var r Raw

	n, err := fmt.Sscanf(s, "%08x:%08x", &r[0], &r[1])
	if err != nil || n != 2 {
		return Raw{}, fmt.Errorf("malformed instruction words %q", s)
	}

	return r, nil
}

// bitField locates a field in one of the two words.
type bitField struct {
	word  int
	shift uint
	width uint
}

func (f bitField) mask() uint32 {
	return (1<<f.width - 1) << f.shift
}

func (f bitField) max() uint32 {
	return 1<<f.width - 1
}

func (f bitField) get(r Raw) uint32 {
	return (r[f.word] >> f.shift) & f.max()
}

func (f bitField) set(r Raw, v uint32) Raw {
	r[f.word] = r[f.word]&^f.mask() | (v<<f.shift)&f.mask()
	return r
}

func (f bitField) getBool(r Raw) bool {
	return f.get(r) != 0
}

func (f bitField) setBool(r Raw, v bool) Raw {
	if v {
		return f.set(r, 1)
	}

	return f.set(r, 0)
}

// Word 0.
var (
	fieldSrc2Num = bitField{0, 0, 7}
	fieldSrc1Num = bitField{0, 7, 7}
	fieldSrc0Num = bitField{0, 14, 7}
	fieldDstNum  = bitField{0, 21, 7}
	fieldS1Bank  = bitField{0, 28, 2}
	fieldS2Bank  = bitField{0, 30, 2}
)

// Word 1.
var (
	fieldOp        = bitField{1, 27, 5}
	fieldPred      = bitField{1, 24, 3}
	fieldSyncStart = bitField{1, 23, 1}
	fieldNoSched   = bitField{1, 22, 1}
	fieldDBank     = bitField{1, 20, 2}
	fieldDBExt     = bitField{1, 19, 1}
	fieldS0Bank    = bitField{1, 18, 1}
	fieldS0BExt    = bitField{1, 17, 1}
	fieldS1BExt    = bitField{1, 16, 1}
	fieldS2BExt    = bitField{1, 15, 1}
	fieldRCntSel   = bitField{1, 14, 1}
	fieldRMskCnt   = bitField{1, 10, 4}
	fieldOpSpec    = bitField{1, 0, 10}
)

// Op-class specific parts of OPSPEC.
var (
	fieldFScalarOp  = bitField{1, 0, 4}
	fieldOpSel1     = bitField{1, 0, 1}
	fieldSMPMode    = bitField{1, 0, 2}
	fieldSpecialCat = bitField{1, 8, 2}
	fieldSpecialSel = bitField{1, 4, 4}
	fieldSaveLink   = bitField{1, 0, 1}
	fieldBranchAddr = bitField{0, 0, 20}

	fieldPackDstFmt = bitField{1, 7, 3}
	fieldPackSrcFmt = bitField{1, 4, 3}
	fieldSrc1Comp   = bitField{1, 2, 2}
	fieldSrc2Comp   = bitField{1, 0, 2}
	fieldPackScale  = fieldRCntSel
	fieldWriteMask  = fieldRMskCnt

	fieldSOPFactor1 = bitField{1, 0, 3}
	fieldSOPFactor2 = bitField{1, 3, 3}

	fieldTestALU     = bitField{1, 0, 4}
	fieldTestType    = bitField{1, 4, 2}
	fieldTestFmt     = bitField{1, 6, 2}
	fieldTestDstOff  = bitField{1, 8, 1}
	fieldIMA8NoAccum = bitField{1, 0, 1}
	fieldIMAESrc2    = bitField{1, 0, 2}
	fieldDOT4        = bitField{1, 0, 1}
)

// NoSched reports whether the deschedule-disable flag is set.
func (r Raw) NoSched() bool {
	return fieldNoSched.getBool(r)
}

// WithNoSched returns r with the deschedule-disable flag set to v.
func (r Raw) WithNoSched(v bool) Raw {
	return fieldNoSched.setBool(r, v)
}

// SyncStart reports whether the synchronisation-start flag is set.
func (r Raw) SyncStart() bool {
	return fieldSyncStart.getBool(r)
}

// WithSyncStart returns r with the synchronisation-start flag set to v.
func (r Raw) WithSyncStart(v bool) Raw {
	return fieldSyncStart.setBool(r, v)
}

// Predicate returns the execution predicate field. Zero means always.
func (r Raw) Predicate() uint32 {
	return fieldPred.get(r)
}

// WithPredicate returns r with the execution predicate set.
func (r Raw) WithPredicate(p uint32) (Raw, error) {
	if p > fieldPred.max() {
		return r, &EncodeError{Field: "predicate", Value: p,
			Msg: fmt.Sprintf("larger than %d", fieldPred.max())}
	}

	return fieldPred.set(r, p), nil
}
