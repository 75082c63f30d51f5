package instr

import (
	"fmt"

	"github.com/sarchlab/unipatch/config"
)

// Opcode is a logical USE operation.
type Opcode int

// The opcodes that the codec knows about.
const (
	OpFMAD Opcode = iota
	OpFADM
	OpFMSA
	OpFRCP
	OpFRSQ
	OpFLOG
	OpFEXP
	OpFDSX
	OpFDSY
	OpFMIN
	OpFMAX
	OpFSUBFLR
	OpFNRM
	OpDOT34
	OpFMAD16
	OpEFO
	OpPCKUNPCK
	OpTEST
	OpTESTMASK
	OpAND
	OpOR
	OpXOR
	OpSHL
	OpROL
	OpSHR
	OpASR
	OpRLP
	OpSOP2
	OpSOP3
	OpSOPWM
	OpLRP
	OpIMA8
	OpIMA16
	OpIMAE
	OpADIF
	OpSSUM16
	OpFPMA
	OpSMP
	OpSMPBIAS
	OpSMPREPLACE
	OpSMPGRAD
	OpLD
	OpST
	OpMOVC
	OpIMA32
	OpBA
	OpBR
	OpLAPC
	OpSETL
	OpSAVL
	OpSMLSI
	OpSMBO
	OpSETFC
	OpNOP
	OpWDF
	OpIDF
	OpATST8
	OpDEPTHF
	numOpcodes
)

// NumOpcodes is the number of defined opcodes.
const NumOpcodes = int(numOpcodes)

type opClass uint32

const (
	classFMAD     opClass = 0x00
	classFADM     opClass = 0x01
	classFMSA     opClass = 0x02
	classFScalar  opClass = 0x03
	classDOT34    opClass = 0x04
	classFMAD16   opClass = 0x05
	classEFO      opClass = 0x06
	classPCKUNPCK opClass = 0x07
	classTEST     opClass = 0x08
	classTESTMASK opClass = 0x09
	classANDOR    opClass = 0x0A
	classXOR      opClass = 0x0B
	classSHLROL   opClass = 0x0C
	classSHRASR   opClass = 0x0D
	classRLP      opClass = 0x0E
	classSOP2     opClass = 0x0F
	classSOP3     opClass = 0x10
	classSOPWM    opClass = 0x11
	classLRP      opClass = 0x12
	classIMA8     opClass = 0x13
	classIMA16    opClass = 0x14
	classIMAE     opClass = 0x15
	classADIFSUM  opClass = 0x16
	classFPMA     opClass = 0x17
	classSMP      opClass = 0x18
	classLD       opClass = 0x19
	classST       opClass = 0x1A
	classMOVC     opClass = 0x1B
	classIMA32    opClass = 0x1C
	classSpecial  opClass = 0x1F
)

// Categories of the SPECIAL op-class.
const (
	catFlowCtrl uint32 = 0
	catMOECtrl  uint32 = 1
	catOther    uint32 = 2
	catVisTest  uint32 = 3
)

type repeatFamily int

const (
	repeatNone repeatFamily = iota
	repeatCount
	repeatMask
	repeatFetch
)

type fcFamily int

const (
	fcFixed fcFamily = iota
	fcEFO
	fcColour
	fcTest
)

type opFlag uint16

const (
	flagNoSched opFlag = 1 << iota
	flagSyncStart
	flagDeschedules
	flagFlowControl
	flagWritesLink
	flagModifierControl
	flagWriteMask
	flagComponents
	flagDynamicOperands
)

const flagsALU = flagNoSched | flagSyncStart

// regTypeSet is a set of register classes.
type regTypeSet uint16

func regTypes(types ...RegType) regTypeSet {
	var s regTypeSet
	for _, t := range types {
		s |= 1 << uint(t)
	}

	return s
}

func (s regTypeSet) has(t RegType) bool {
	return s == 0 || s&(1<<uint(t)) != 0
}

type opInfo struct {
	name      string
	class     opClass
	sel       uint32
	sub       uint32
	repeat    repeatFamily
	maxRepeat int
	operands  OperandSet
	ext       OperandSet
	dstTypes  regTypeSet
	flags     opFlag
	fc        fcFamily
	available func(f config.Features) bool
}

const (
	opsAll  = OperandDst | OperandSrc0 | OperandSrc1 | OperandSrc2
	opsD12  = OperandDst | OperandSrc1 | OperandSrc2
	opsD1   = OperandDst | OperandSrc1
	opsSrcs = OperandSrc0 | OperandSrc1 | OperandSrc2
)

func hasFNRM(f config.Features) bool    { return f.HasFNRM }
func hasIMA32(f config.Features) bool   { return f.HasIMA32 }
func hasVisTest(f config.Features) bool { return f.HasVisTest }

var opTable = [numOpcodes]opInfo{
	OpFMAD: {name: "FMAD", class: classFMAD, repeat: repeatMask, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFADM: {name: "FADM", class: classFADM, repeat: repeatMask, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFMSA: {name: "FMSA", class: classFMSA, repeat: repeatMask, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFRCP: {name: "FRCP", class: classFScalar, sel: 0, repeat: repeatMask, maxRepeat: 16,
		operands: opsD1, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFRSQ: {name: "FRSQ", class: classFScalar, sel: 1, repeat: repeatMask, maxRepeat: 16,
		operands: opsD1, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFLOG: {name: "FLOG", class: classFScalar, sel: 2, repeat: repeatMask, maxRepeat: 16,
		operands: opsD1, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFEXP: {name: "FEXP", class: classFScalar, sel: 3, repeat: repeatMask, maxRepeat: 16,
		operands: opsD1, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFDSX: {name: "FDSX", class: classFScalar, sel: 4, repeat: repeatMask, maxRepeat: 16,
		operands: opsD1, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFDSY: {name: "FDSY", class: classFScalar, sel: 5, repeat: repeatMask, maxRepeat: 16,
		operands: opsD1, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFMIN: {name: "FMIN", class: classFScalar, sel: 6, repeat: repeatMask, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFMAX: {name: "FMAX", class: classFScalar, sel: 7, repeat: repeatMask, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFSUBFLR: {name: "FSUBFLR", class: classFScalar, sel: 8, repeat: repeatMask, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpFNRM: {name: "FNRM", class: classFScalar, sel: 9, repeat: repeatMask, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU, fc: fcEFO, available: hasFNRM},
	OpDOT34: {name: "DOT34", class: classDOT34, repeat: repeatCount, maxRepeat: 4,
		operands: opsAll, ext: opsAll, flags: flagsALU | flagDynamicOperands, fc: fcEFO},
	OpFMAD16: {name: "FMAD16", class: classFMAD16, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU},
	OpEFO: {name: "EFO", class: classEFO, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU, fc: fcEFO},
	OpPCKUNPCK: {name: "PCKUNPCK", class: classPCKUNPCK, repeat: repeatNone, maxRepeat: 1,
		operands: opsD12, ext: opsAll,
		flags: flagsALU | flagWriteMask | flagComponents | flagDynamicOperands},
	OpTEST: {name: "TEST", class: classTEST, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU | flagDynamicOperands, fc: fcTest},
	OpTESTMASK: {name: "TESTMASK", class: classTESTMASK, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU | flagDynamicOperands, fc: fcTest},
	OpAND: {name: "AND", class: classANDOR, sel: 0, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpOR: {name: "OR", class: classANDOR, sel: 1, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpXOR: {name: "XOR", class: classXOR, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpSHL: {name: "SHL", class: classSHLROL, sel: 0, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpROL: {name: "ROL", class: classSHLROL, sel: 1, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpSHR: {name: "SHR", class: classSHRASR, sel: 0, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpASR: {name: "ASR", class: classSHRASR, sel: 1, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpRLP: {name: "RLP", class: classRLP, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpSOP2: {name: "SOP2", class: classSOP2, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU | flagDynamicOperands, fc: fcColour},
	OpSOP3: {name: "SOP3", class: classSOP3, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU, fc: fcColour},
	OpSOPWM: {name: "SOPWM", class: classSOPWM, repeat: repeatNone, maxRepeat: 1,
		operands: opsD12, ext: opsAll,
		flags: flagsALU | flagWriteMask | flagDynamicOperands, fc: fcColour},
	OpLRP: {name: "LRP", class: classLRP, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU, fc: fcColour},
	OpIMA8: {name: "IMA8", class: classIMA8, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU | flagDynamicOperands, fc: fcColour},
	OpIMA16: {name: "IMA16", class: classIMA16, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU},
	OpIMAE: {name: "IMAE", class: classIMAE, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU | flagDynamicOperands},
	OpADIF: {name: "ADIF", class: classADIFSUM, sel: 0, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpSSUM16: {name: "SSUM16", class: classADIFSUM, sel: 1, repeat: repeatCount, maxRepeat: 16,
		operands: opsD12, ext: opsAll, flags: flagsALU},
	OpFPMA: {name: "FPMA", class: classFPMA, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU, fc: fcColour},
	OpSMP: {name: "SMP", class: classSMP, sel: 0, repeat: repeatCount, maxRepeat: 4,
		operands: OperandDst | OperandSrc0 | OperandSrc1, ext: OperandSrc1 | OperandSrc2,
		dstTypes: regTypes(RegTemp, RegPrimAttr)},
	OpSMPBIAS: {name: "SMPBIAS", class: classSMP, sel: 1, repeat: repeatCount, maxRepeat: 4,
		operands: opsAll, ext: OperandSrc1 | OperandSrc2,
		dstTypes: regTypes(RegTemp, RegPrimAttr)},
	OpSMPREPLACE: {name: "SMPREPLACE", class: classSMP, sel: 2, repeat: repeatCount, maxRepeat: 4,
		operands: opsAll, ext: OperandSrc1 | OperandSrc2,
		dstTypes: regTypes(RegTemp, RegPrimAttr)},
	OpSMPGRAD: {name: "SMPGRAD", class: classSMP, sel: 3, repeat: repeatCount, maxRepeat: 4,
		operands: opsAll, ext: OperandSrc1 | OperandSrc2,
		dstTypes: regTypes(RegTemp, RegPrimAttr)},
	OpLD: {name: "LD", class: classLD, repeat: repeatFetch, maxRepeat: 16,
		operands: OperandDst | OperandSrc0 | OperandSrc1, ext: OperandSrc1 | OperandSrc2,
		dstTypes: regTypes(RegTemp, RegPrimAttr)},
	OpST: {name: "ST", class: classST, repeat: repeatFetch, maxRepeat: 16,
		operands: opsSrcs, ext: OperandSrc1 | OperandSrc2},
	OpMOVC: {name: "MOVC", class: classMOVC, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU},
	OpIMA32: {name: "IMA32", class: classIMA32, repeat: repeatCount, maxRepeat: 16,
		operands: opsAll, ext: opsAll, flags: flagsALU, available: hasIMA32},
	OpBA: {name: "BA", class: classSpecial, sel: catFlowCtrl, sub: 0,
		flags: flagFlowControl},
	OpBR: {name: "BR", class: classSpecial, sel: catFlowCtrl, sub: 1,
		flags: flagFlowControl},
	OpLAPC: {name: "LAPC", class: classSpecial, sel: catFlowCtrl, sub: 2,
		flags: flagFlowControl | flagDeschedules},
	OpSETL: {name: "SETL", class: classSpecial, sel: catFlowCtrl, sub: 3,
		operands: OperandSrc1, ext: OperandSrc1, flags: flagWritesLink},
	OpSAVL: {name: "SAVL", class: classSpecial, sel: catFlowCtrl, sub: 4,
		operands: OperandDst, ext: OperandDst},
	OpSMLSI: {name: "SMLSI", class: classSpecial, sel: catMOECtrl, sub: 0,
		flags: flagModifierControl},
	OpSMBO: {name: "SMBO", class: classSpecial, sel: catMOECtrl, sub: 1,
		flags: flagModifierControl},
	OpSETFC: {name: "SETFC", class: classSpecial, sel: catMOECtrl, sub: 2,
		flags: flagModifierControl},
	OpNOP: {name: "NOP", class: classSpecial, sel: catOther, sub: 0,
		flags: flagsALU},
	OpWDF: {name: "WDF", class: classSpecial, sel: catOther, sub: 1,
		flags: flagDeschedules},
	OpIDF: {name: "IDF", class: classSpecial, sel: catOther, sub: 2},
	OpATST8: {name: "ATST8", class: classSpecial, sel: catVisTest, sub: 0,
		operands: opsSrcs, ext: OperandSrc1 | OperandSrc2, available: hasVisTest},
	OpDEPTHF: {name: "DEPTHF", class: classSpecial, sel: catVisTest, sub: 1,
		operands: OperandSrc0 | OperandSrc1, ext: OperandSrc1, available: hasVisTest},
}

type decodeKey struct {
	class opClass
	sel   uint32
	sub   uint32
}

var decodeTable = buildDecodeTable()

func buildDecodeTable() map[decodeKey]Opcode {
	t := make(map[decodeKey]Opcode, numOpcodes)

	for op := Opcode(0); op < numOpcodes; op++ {
		info := &opTable[op]
		key := decodeKey{info.class, info.sel, info.sub}

		if _, dup := t[key]; dup {
			panic(fmt.Sprintf("opcode %s shares its encoding", info.name))
		}

		t[key] = op
	}

	return t
}

// selectors extracts the secondary and tertiary selector of an op-class.
func selectors(r Raw, class opClass) (sel, sub uint32) {
	switch class {
	case classFScalar:
		return fieldFScalarOp.get(r), 0
	case classANDOR, classSHLROL, classSHRASR, classADIFSUM:
		return fieldOpSel1.get(r), 0
	case classSMP:
		return fieldSMPMode.get(r), 0
	case classSpecial:
		return fieldSpecialCat.get(r), fieldSpecialSel.get(r)
	default:
		return 0, 0
	}
}

func setSelectors(r Raw, class opClass, sel, sub uint32) Raw {
	switch class {
	case classFScalar:
		return fieldFScalarOp.set(r, sel)
	case classANDOR, classSHLROL, classSHRASR, classADIFSUM:
		return fieldOpSel1.set(r, sel)
	case classSMP:
		return fieldSMPMode.set(r, sel)
	case classSpecial:
		r = fieldSpecialCat.set(r, sel)
		return fieldSpecialSel.set(r, sub)
	default:
		return r
	}
}

// DecodeOpcode resolves the opcode of an instruction.
func DecodeOpcode(r Raw, f config.Features) (Opcode, error) {
	class := opClass(fieldOp.get(r))
	sel, sub := selectors(r, class)

	op, ok := decodeTable[decodeKey{class, sel, sub}]
	if !ok {
		switch class {
		case classSpecial:
			return 0, decodeErr(r, "special selector", sel<<4|sub, "undefined")
		case classFScalar, classANDOR, classSHLROL, classSHRASR,
			classADIFSUM, classSMP:
			return 0, decodeErr(r, "selector", sel, "undefined")
		default:
			return 0, decodeErr(r, "op", uint32(class), "undefined op-class")
		}
	}

	if !op.AvailableOn(f) {
		return 0, decodeErr(r, "op", uint32(class),
			fmt.Sprintf("%s is not available on %s", op, f.Name))
	}

	return op, nil
}

// EncodeOpcode writes the op-class and selector fields of op into r.
func EncodeOpcode(r Raw, op Opcode, f config.Features) (Raw, error) {
	if !op.Valid() {
		return r, encodeErr(op, SlotNone, "op", uint32(op), "undefined opcode")
	}

	if !op.AvailableOn(f) {
		return r, encodeErr(op, SlotNone, "op", uint32(op),
			fmt.Sprintf("not available on %s", f.Name))
	}

	info := &opTable[op]
	r = fieldOp.set(r, uint32(info.class))

	return setSelectors(r, info.class, info.sel, info.sub), nil
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op >= 0 && op < numOpcodes
}

// String returns the mnemonic.
func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Opcode(%d)", int(op))
	}

	return opTable[op].name
}

// AvailableOn reports whether the variant implements op.
func (op Opcode) AvailableOn(f config.Features) bool {
	if !op.Valid() {
		return false
	}

	avail := opTable[op].available

	return avail == nil || avail(f)
}

func (op Opcode) has(flag opFlag) bool {
	return op.Valid() && opTable[op].flags&flag != 0
}

// SupportsNoSched reports whether op can carry the deschedule-disable flag.
func (op Opcode) SupportsNoSched() bool { return op.has(flagNoSched) }

// SupportsSyncStart reports whether op can carry the synchronisation-start
// flag.
func (op Opcode) SupportsSyncStart() bool { return op.has(flagSyncStart) }

// Deschedules reports whether op always ends with a deschedule.
func (op Opcode) Deschedules() bool { return op.has(flagDeschedules) }

// IsFlowControl reports whether op is a branch.
func (op Opcode) IsFlowControl() bool { return op.has(flagFlowControl) }

// IsModifierControl reports whether op changes the modifier state.
func (op Opcode) IsModifierControl() bool { return op.has(flagModifierControl) }

// HasWriteMask reports whether op carries a destination write mask.
func (op Opcode) HasWriteMask() bool { return op.has(flagWriteMask) }

// HasDynamicOperands reports whether the operand set of op depends on other
// fields of the instruction.
func (op Opcode) HasDynamicOperands() bool { return op.has(flagDynamicOperands) }

// SupportsExtendedBanks reports whether slot of op may use the extended bank
// set.
func (op Opcode) SupportsExtendedBanks(slot Slot) bool {
	return op.Valid() && opTable[op].ext.Has(slot)
}

// ExtendedBanks returns the slots of op that may use the extended bank set.
func (op Opcode) ExtendedBanks() OperandSet {
	if !op.Valid() {
		return 0
	}

	return opTable[op].ext
}

// IsEFOFamily reports whether op takes F32/F16 format control from the
// modifier state.
func (op Opcode) IsEFOFamily() bool { return op.Valid() && opTable[op].fc == fcEFO }

// IsColourFamily reports whether op takes U8/C10 format control from the
// modifier state.
func (op Opcode) IsColourFamily() bool { return op.Valid() && opTable[op].fc == fcColour }

// IsTestFamily reports whether op selects format control itself.
func (op Opcode) IsTestFamily() bool { return op.Valid() && opTable[op].fc == fcTest }
