package instr

import (
	"fmt"
	"strings"

	"github.com/sarchlab/unipatch/config"
)

// Slot names one of the four operand positions of an instruction.
type Slot int

// The operand slots.
const (
	SlotDst Slot = iota
	SlotSrc0
	SlotSrc1
	SlotSrc2

	// SlotNone is used in errors that do not concern an operand.
	SlotNone Slot = -1
)

// NumSlots is the number of operand slots.
const NumSlots = 4

var slotNames = [NumSlots]string{"dst", "src0", "src1", "src2"}

func (s Slot) valid() bool {
	return s >= SlotDst && s <= SlotSrc2
}

// String returns the lower-case slot name.
func (s Slot) String() string {
	if !s.valid() {
		return "-"
	}

	return slotNames[s]
}

// OperandSet is a set of operand slots.
type OperandSet uint8

// Single-slot sets.
const (
	OperandDst OperandSet = 1 << iota
	OperandSrc0
	OperandSrc1
	OperandSrc2
)

// Has reports whether s contains slot.
func (s OperandSet) Has(slot Slot) bool {
	return slot.valid() && s&(1<<uint(slot)) != 0
}

// With returns s plus slot.
func (s OperandSet) With(slot Slot) OperandSet {
	if !slot.valid() {
		return s
	}

	return s | 1<<uint(slot)
}

// Slots lists the members of s in slot order.
func (s OperandSet) Slots() []Slot {
	var out []Slot

	for slot := SlotDst; slot <= SlotSrc2; slot++ {
		if s.Has(slot) {
			out = append(out, slot)
		}
	}

	return out
}

func (s OperandSet) String() string {
	names := make([]string, 0, NumSlots)
	for _, slot := range s.Slots() {
		names = append(names, slot.String())
	}

	return "{" + strings.Join(names, ",") + "}"
}

// RegType is a register class.
type RegType int

// The register classes.
const (
	RegTemp RegType = iota
	RegPrimAttr
	RegSecAttr
	RegOutput
	RegInternal
	RegSpecial
	RegImmediate
)

var regPrefixes = map[RegType]string{
	RegTemp:      "r",
	RegPrimAttr:  "pa",
	RegSecAttr:   "sa",
	RegOutput:    "o",
	RegInternal:  "i",
	RegSpecial:   "sr",
	RegImmediate: "#",
}

func (t RegType) String() string {
	if p, ok := regPrefixes[t]; ok {
		return p
	}

	return fmt.Sprintf("RegType(%d)", int(t))
}

// IndexSel selects one of the two index registers.
type IndexSel int

// Dynamic index selectors.
const (
	IndexNone IndexSel = iota
	IndexLow
	IndexHigh
)

// Format is the data format selected by the format bit of a register number.
type Format int

// The selectable formats.
const (
	FormatNone Format = iota
	FormatF32
	FormatF16
	FormatU8
	FormatC10
)

var formatNames = [...]string{"", "f32", "f16", "u8", "c10"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}

	return formatNames[f]
}

// FormatControl says whether, and how, the low bit of a register number
// selects a data format.
type FormatControl int

// Format control modes.
const (
	FCNone FormatControl = iota
	FCF32F16
	FCU8C10
)

func (fc FormatControl) String() string {
	switch fc {
	case FCNone:
		return "none"
	case FCF32F16:
		return "f32/f16"
	case FCU8C10:
		return "u8/c10"
	default:
		return fmt.Sprintf("FormatControl(%d)", int(fc))
	}
}

// formats returns the formats selected by format bit 0 and 1.
func (fc FormatControl) formats() (Format, Format, bool) {
	switch fc {
	case FCF32F16:
		return FormatF32, FormatF16, true
	case FCU8C10:
		return FormatU8, FormatC10, true
	default:
		return FormatNone, FormatNone, false
	}
}

// Operand is the decoded form of one operand.
//
// When Index is not IndexNone, Type is the class of the indexed register
// array and Number is the offset added to the index register.
type Operand struct {
	Type      RegType
	Number    int
	Format    Format
	Component int
	Index     IndexSel
}

func (o Operand) String() string {
	var s string

	switch o.Index {
	case IndexLow:
		s = fmt.Sprintf("%s[i.l+%d]", o.Type, o.Number)
	case IndexHigh:
		s = fmt.Sprintf("%s[i.h+%d]", o.Type, o.Number)
	default:
		s = fmt.Sprintf("%s%d", o.Type, o.Number)
	}

	if o.Format != FormatNone {
		s += "." + o.Format.String()
	}

	if o.Component != 0 {
		s += fmt.Sprintf(".%d", o.Component)
	}

	return s
}

type bank int

const (
	bankUndef bank = iota
	bankTemp
	bankOutput
	bankPrimAttr
	bankSecAttr
	bankIndex
	bankSpecial
	bankInternal
	bankImmediate
)

var bankTypes = map[bank]RegType{
	bankTemp:      RegTemp,
	bankOutput:    RegOutput,
	bankPrimAttr:  RegPrimAttr,
	bankSecAttr:   RegSecAttr,
	bankSpecial:   RegSpecial,
	bankInternal:  RegInternal,
	bankImmediate: RegImmediate,
}

// Classes reachable through the index bank, by their two-bit code.
var indexedTypes = [4]RegType{RegTemp, RegOutput, RegPrimAttr, RegSecAttr}

type slotLayout struct {
	num      bitField
	bank     bitField
	ext      bitField
	normal   []bank
	extended []bank
}

var slotLayouts = [NumSlots]slotLayout{
	SlotDst: {
		num:      fieldDstNum,
		bank:     fieldDBank,
		ext:      fieldDBExt,
		normal:   []bank{bankTemp, bankOutput, bankPrimAttr, bankSecAttr},
		extended: []bank{bankIndex, bankSpecial, bankInternal, bankUndef},
	},
	SlotSrc0: {
		num:      fieldSrc0Num,
		bank:     fieldS0Bank,
		ext:      fieldS0BExt,
		normal:   []bank{bankTemp, bankPrimAttr},
		extended: []bank{bankOutput, bankSecAttr},
	},
	SlotSrc1: {
		num:      fieldSrc1Num,
		bank:     fieldS1Bank,
		ext:      fieldS1BExt,
		normal:   []bank{bankTemp, bankOutput, bankPrimAttr, bankSecAttr},
		extended: []bank{bankImmediate, bankIndex, bankSpecial, bankInternal},
	},
	SlotSrc2: {
		num:      fieldSrc2Num,
		bank:     fieldS2Bank,
		ext:      fieldS2BExt,
		normal:   []bank{bankTemp, bankOutput, bankPrimAttr, bankSecAttr},
		extended: []bank{bankImmediate, bankInternal, bankIndex, bankSpecial},
	},
}

const numberWidth = 7

// carriesFormat reports whether numbers in b give up their low bit to the
// format selector.
func carriesFormat(b bank, fc FormatControl) bool {
	if fc == FCNone {
		return false
	}

	return b != bankImmediate && b != bankSpecial
}

func payloadWidth(b bank, fc FormatControl) uint {
	if carriesFormat(b, fc) {
		return numberWidth - 1
	}

	return numberWidth
}

// internalBase is the first temporary number that aliases an internal
// register on unified variants.
func internalBase(width uint, f config.Features) int {
	return (1 << width) - f.NumInternalRegs
}

// MaxNumber returns the largest register number of class t that a plain
// (non-indexed) operand can address under fc. On unified variants the top
// temporaries are taken by the internal registers.
func MaxNumber(t RegType, fc FormatControl, f config.Features) int {
	switch t {
	case RegImmediate, RegSpecial:
		return 1<<numberWidth - 1
	case RegInternal:
		return f.NumInternalRegs - 1
	}

	width := uint(numberWidth)
	if fc != FCNone {
		width--
	}

	if t == RegTemp && f.UnifiedInternalRegs {
		return internalBase(width, f) - 1
	}

	return 1<<width - 1
}

// MaxIndexOffset returns the largest offset of an indexed operand under fc.
func MaxIndexOffset(fc FormatControl) int {
	width := payloadWidth(bankIndex, fc)
	return 1<<(width-4) - 1
}

func checkSlot(op Opcode, slot Slot) (*opInfo, error) {
	if !op.Valid() {
		return nil, encodeErr(op, slot, "op", uint32(op), "undefined opcode")
	}

	if !slot.valid() {
		return nil, encodeErr(op, slot, "slot", uint32(slot), "undefined slot")
	}

	info := &opTable[op]
	if !info.operands.Has(slot) {
		return nil, encodeErr(op, slot, "slot", uint32(slot),
			"opcode has no such operand")
	}

	return info, nil
}

// DecodeOperand extracts the operand in slot. fc is the format control in
// effect for the instruction and ext says whether the extended bank set may be
// used in this slot.
func DecodeOperand(
	r Raw,
	op Opcode,
	slot Slot,
	fc FormatControl,
	ext bool,
	f config.Features,
) (Operand, error) {
	info, err := checkSlot(op, slot)
	if err != nil {
		return Operand{}, err
	}

	layout := &slotLayouts[slot]

	banks := layout.normal
	isExt := layout.ext.getBool(r)
	if isExt {
		if !ext {
			return Operand{}, decodeErr(r, slot.String()+" bank ext", 1,
				"extended banks not allowed")
		}

		banks = layout.extended
	}

	code := layout.bank.get(r)
	b := banks[code]
	if b == bankUndef {
		return Operand{}, decodeErr(r, slot.String()+" bank", code, "undefined bank")
	}

	n := layout.num.get(r)
	width := payloadWidth(b, fc)

	var d Operand
	if carriesFormat(b, fc) {
		f0, f1, _ := fc.formats()
		d.Format = f0
		if n&1 != 0 {
			d.Format = f1
		}

		n >>= 1
	}

	switch b {
	case bankIndex:
		sel := (n >> (width - 2)) & 3
		switch sel {
		case 1:
			d.Index = IndexLow
		case 2:
			d.Index = IndexHigh
		default:
			return Operand{}, decodeErr(r, slot.String()+" index select", sel,
				"undefined index register")
		}

		d.Type = indexedTypes[(n>>(width-4))&3]
		d.Number = int(n & (1<<(width-4) - 1))
	case bankInternal:
		if f.UnifiedInternalRegs {
			return Operand{}, decodeErr(r, slot.String()+" bank", code,
				"internal bank is aliased to temporaries on "+f.Name)
		}

		if int(n) >= f.NumInternalRegs {
			return Operand{}, decodeErr(r, slot.String()+" number", n,
				"no such internal register")
		}

		d.Type = RegInternal
		d.Number = int(n)
	case bankTemp:
		d.Type = RegTemp
		d.Number = int(n)

		if base := internalBase(width, f); f.UnifiedInternalRegs && d.Number >= base {
			d.Type = RegInternal
			d.Number -= base
		}
	default:
		d.Type = bankTypes[b]
		d.Number = int(n)
	}

	if slot == SlotDst && !info.dstTypes.has(d.Type) {
		return Operand{}, decodeErr(r, "dst type", uint32(d.Type),
			fmt.Sprintf("%s cannot write %s", op, d.Type))
	}

	if info.flags&flagComponents != 0 {
		switch slot {
		case SlotSrc1:
			d.Component = int(fieldSrc1Comp.get(r))
		case SlotSrc2:
			d.Component = int(fieldSrc2Comp.get(r))
		}
	}

	return d, nil
}

// EncodeOperand writes d into slot of r. fc is the format control in effect
// for the instruction. Values outside the legal range for op and fc are
// rejected, never truncated.
func EncodeOperand(
	r Raw,
	op Opcode,
	slot Slot,
	fc FormatControl,
	d Operand,
	f config.Features,
) (Raw, error) {
	info, err := checkSlot(op, slot)
	if err != nil {
		return r, err
	}

	fail := func(field string, v int, msg string) (Raw, error) {
		return r, encodeErr(op, slot, field, uint32(v), msg)
	}

	if slot == SlotDst && !info.dstTypes.has(d.Type) {
		return fail("type", int(d.Type), "not a legal destination class")
	}

	if d.Number < 0 {
		return fail("number", d.Number, "negative register number")
	}

	comp := info.flags&flagComponents != 0 && (slot == SlotSrc1 || slot == SlotSrc2)
	if d.Component != 0 && !comp {
		return fail("component", d.Component, "operand has no component select")
	}

	if d.Component < 0 || d.Component > 3 {
		return fail("component", d.Component, "component out of range")
	}

	b, payload, err := operandBank(op, slot, fc, d, f)
	if err != nil {
		return r, err
	}

	number := uint32(payload)
	if carriesFormat(b, fc) {
		f0, f1, _ := fc.formats()

		var bit uint32
		switch d.Format {
		case f0:
		case f1:
			bit = 1
		default:
			return fail("format", int(d.Format),
				fmt.Sprintf("format %s is not selectable under %s", d.Format, fc))
		}

		number = number<<1 | bit
	} else if d.Format != FormatNone {
		return fail("format", int(d.Format), "operand carries no format bit")
	}

	layout := &slotLayouts[slot]

	code, isExt, ok := bankCode(layout, b)
	if !ok {
		return fail("type", int(d.Type),
			fmt.Sprintf("%s is not addressable from %s", d.Type, slot))
	}

	if isExt && !info.ext.Has(slot) {
		return fail("type", int(d.Type), "needs an extended bank")
	}

	r = layout.num.set(r, number)
	r = layout.bank.set(r, code)
	r = layout.ext.setBool(r, isExt)

	if comp {
		if slot == SlotSrc1 {
			r = fieldSrc1Comp.set(r, uint32(d.Component))
		} else {
			r = fieldSrc2Comp.set(r, uint32(d.Component))
		}
	}

	return r, nil
}

// operandBank chooses the bank for d and computes the number payload before
// the format bit is added.
func operandBank(
	op Opcode,
	slot Slot,
	fc FormatControl,
	d Operand,
	f config.Features,
) (bank, int, error) {
	fail := func(field string, v int, msg string) (bank, int, error) {
		return bankUndef, 0, encodeErr(op, slot, field, uint32(v), msg)
	}

	if d.Index != IndexNone {
		width := payloadWidth(bankIndex, fc)

		sel := 0
		switch d.Index {
		case IndexLow:
			sel = 1
		case IndexHigh:
			sel = 2
		default:
			return fail("index", int(d.Index), "undefined index register")
		}

		class := -1
		for i, t := range indexedTypes {
			if t == d.Type {
				class = i
			}
		}

		if class < 0 {
			return fail("type", int(d.Type), "class cannot be indexed")
		}

		if d.Number > MaxIndexOffset(fc) {
			return fail("number", d.Number,
				fmt.Sprintf("index offset above %d", MaxIndexOffset(fc)))
		}

		return bankIndex, sel<<(width-2) | class<<(width-4) | d.Number, nil
	}

	var b bank
	switch d.Type {
	case RegTemp:
		b = bankTemp
	case RegOutput:
		b = bankOutput
	case RegPrimAttr:
		b = bankPrimAttr
	case RegSecAttr:
		b = bankSecAttr
	case RegSpecial:
		b = bankSpecial
	case RegImmediate:
		b = bankImmediate
	case RegInternal:
		if d.Number >= f.NumInternalRegs {
			return fail("number", d.Number, "no such internal register")
		}

		if !f.UnifiedInternalRegs {
			return bankInternal, d.Number, nil
		}

		width := payloadWidth(bankTemp, fc)

		return bankTemp, internalBase(width, f) + d.Number, nil
	default:
		return fail("type", int(d.Type), "undefined register class")
	}

	if limit := MaxNumber(d.Type, fc, f); d.Number > limit {
		return fail("number", d.Number, fmt.Sprintf("above %d under %s", limit, fc))
	}

	return b, d.Number, nil
}

func bankCode(layout *slotLayout, b bank) (uint32, bool, bool) {
	for i, nb := range layout.normal {
		if nb == b {
			return uint32(i), false, true
		}
	}

	for i, eb := range layout.extended {
		if eb == b {
			return uint32(i), true, true
		}
	}

	return 0, false, false
}
