package instr

// OperandsUsed returns the operand slots an instruction reads or writes. For
// most opcodes the set is fixed. The rest derive it from other fields.
func OperandsUsed(op Opcode, r Raw) OperandSet {
	if !op.Valid() {
		return 0
	}

	static := opTable[op].operands
	if !op.HasDynamicOperands() {
		return static
	}

	switch op {
	case OpPCKUNPCK:
		used := OperandDst
		n := packChannelsWritten(r)

		if n >= 1 {
			used |= OperandSrc1
		}

		if n >= 2 {
			used |= OperandSrc2
		}

		return used
	case OpTEST:
		used := OperandSrc1
		if !TestDestDisabled(r) {
			used |= OperandDst
		}

		if !TestALU(fieldTestALU.get(r)).Unary() {
			used |= OperandSrc2
		}

		return used
	case OpTESTMASK:
		used := OperandDst | OperandSrc1
		if !TestALU(fieldTestALU.get(r)).Unary() {
			used |= OperandSrc2
		}

		return used
	case OpSOP2, OpSOPWM:
		used := OperandDst
		f1, f2 := SOPFactors(r)

		if f1 != 0 {
			used |= OperandSrc1
		}

		if f2 != 0 {
			used |= OperandSrc2
		}

		return used
	case OpIMA8:
		used := OperandDst | OperandSrc1 | OperandSrc2
		if !fieldIMA8NoAccum.getBool(r) {
			used |= OperandSrc0
		}

		return used
	case OpIMAE:
		used := OperandDst | OperandSrc0 | OperandSrc1
		if fieldIMAESrc2.get(r) != 0 {
			used |= OperandSrc2
		}

		return used
	case OpDOT34:
		used := OperandDst | OperandSrc1 | OperandSrc2
		if fieldDOT4.getBool(r) {
			used |= OperandSrc0
		}

		return used
	default:
		return static
	}
}
