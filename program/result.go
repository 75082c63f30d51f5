package program

import (
	"fmt"

	"github.com/sarchlab/unipatch/instr"
)

// CapacityError reports that a fixed-size pool ran out of entries.
type CapacityError struct {
	What     string
	Capacity int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: all %d entries in use", e.What, e.Capacity)
}

// ResultRef ties an instruction to the location of the shader result, which
// is fixed up after finalization.
type ResultRef struct {
	ID       int
	Inst     *Instruction
	Operands instr.OperandSet
	Active   bool
}

// ResultTracker hands out result references.
type ResultTracker interface {
	// Track allocates a reference for the given operands of inst.
	Track(inst *Instruction, operands instr.OperandSet) (*ResultRef, error)

	// Release deactivates a reference.
	Release(ref *ResultRef)
}

// ResultPool is a ResultTracker with a fixed number of references.
type ResultPool struct {
	refs []ResultRef
}

// NewResultPool creates a pool of n references.
func NewResultPool(n int) *ResultPool {
	p := &ResultPool{refs: make([]ResultRef, n)}
	for i := range p.refs {
		p.refs[i].ID = i
	}

	return p
}

// Track implements ResultTracker.
func (p *ResultPool) Track(
	inst *Instruction,
	operands instr.OperandSet,
) (*ResultRef, error) {
	for i := range p.refs {
		ref := &p.refs[i]
		if ref.Active {
			continue
		}

		ref.Inst = inst
		ref.Operands = operands
		ref.Active = true

		return ref, nil
	}

	return nil, &CapacityError{What: "result references", Capacity: len(p.refs)}
}

// Release implements ResultTracker.
func (p *ResultPool) Release(ref *ResultRef) {
	if ref == nil {
		return
	}

	ref.Active = false
	ref.Inst = nil
	ref.Operands = 0
}

// Active lists the references in use, in ID order.
func (p *ResultPool) Active() []*ResultRef {
	var out []*ResultRef

	for i := range p.refs {
		if p.refs[i].Active {
			out = append(out, &p.refs[i])
		}
	}

	return out
}
