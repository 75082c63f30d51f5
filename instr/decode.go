package instr

import (
	"fmt"
	"strings"

	"github.com/sarchlab/unipatch/config"
)

// Inst is a fully decoded instruction.
type Inst struct {
	Op          Opcode
	Repeat      RepeatMode
	RepeatValue int
	Predicate   uint32
	NoSched     bool
	SyncStart   bool
	Used        OperandSet
	Operands    [NumSlots]Operand
}

// Decode decodes the opcode, repeat and every used operand of r. fc is the
// format control in effect, which callers derive from the modifier state.
func Decode(r Raw, fc FormatControl, f config.Features) (Inst, error) {
	op, err := DecodeOpcode(r, f)
	if err != nil {
		return Inst{}, err
	}

	mode, value, err := DecodeRepeat(r, op, f)
	if err != nil {
		return Inst{}, err
	}

	in := Inst{
		Op:          op,
		Repeat:      mode,
		RepeatValue: value,
		Predicate:   r.Predicate(),
		NoSched:     r.NoSched(),
		SyncStart:   r.SyncStart(),
		Used:        OperandsUsed(op, r),
	}

	for _, slot := range in.Used.Slots() {
		d, err := DecodeOperand(r, op, slot, fc, op.SupportsExtendedBanks(slot), f)
		if err != nil {
			return Inst{}, err
		}

		in.Operands[slot] = d
	}

	return in, nil
}

// Encode builds an instruction from scratch. Fields outside the opcode,
// repeat, flag and operand fields are taken from base.
func Encode(base Raw, in Inst, fc FormatControl, f config.Features) (Raw, error) {
	r, err := EncodeOpcode(base, in.Op, f)
	if err != nil {
		return base, err
	}

	r, err = EncodeRepeat(r, in.Op, in.Repeat, in.RepeatValue, f)
	if err != nil {
		return base, err
	}

	r, err = r.WithPredicate(in.Predicate)
	if err != nil {
		return base, err
	}

	if (in.NoSched && !in.Op.SupportsNoSched()) ||
		(in.SyncStart && !in.Op.SupportsSyncStart()) {
		return base, encodeErr(in.Op, SlotNone, "flags", 0,
			"opcode does not carry scheduling flags")
	}

	r = r.WithNoSched(in.NoSched).WithSyncStart(in.SyncStart)

	for _, slot := range in.Used.Slots() {
		r, err = EncodeOperand(r, in.Op, slot, fc, in.Operands[slot], f)
		if err != nil {
			return base, err
		}
	}

	return r, nil
}

func (in Inst) String() string {
	var sb strings.Builder

	if in.Predicate != 0 {
		fmt.Fprintf(&sb, "(p%d) ", in.Predicate)
	}

	sb.WriteString(in.Op.String())

	switch in.Repeat {
	case RepeatCount, RepeatFetch:
		if in.RepeatValue > 1 {
			fmt.Fprintf(&sb, ".rpt%d", in.RepeatValue)
		}
	case RepeatMask:
		fmt.Fprintf(&sb, ".mask%x", in.RepeatValue)
	}

	if in.NoSched {
		sb.WriteString(".nosched")
	}

	if in.SyncStart {
		sb.WriteString(".syncs")
	}

	ops := make([]string, 0, NumSlots)
	for _, slot := range in.Used.Slots() {
		ops = append(ops, in.Operands[slot].String())
	}

	if len(ops) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(ops, ", "))
	}

	return sb.String()
}
