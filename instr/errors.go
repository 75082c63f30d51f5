package instr

import "fmt"

// DecodeError reports raw bits that do not mean anything on the configured
// hardware variant.
type DecodeError struct {
	Raw   Raw
	Field string
	Value uint32
	Msg   string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s %d: %s", e.Raw, e.Field, e.Value, e.Msg)
}

// EncodeError reports a value that cannot be encoded for the given opcode.
type EncodeError struct {
	Op    Opcode
	Slot  Slot
	Field string
	Value uint32
	Msg   string
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s %s: %s %d: %s",
		e.Op, e.Slot, e.Field, e.Value, e.Msg)
}

func decodeErr(r Raw, field string, v uint32, msg string) error {
	return &DecodeError{Raw: r, Field: field, Value: v, Msg: msg}
}

func encodeErr(op Opcode, slot Slot, field string, v uint32, msg string) error {
	return &EncodeError{Op: op, Slot: slot, Field: field, Value: v, Msg: msg}
}
