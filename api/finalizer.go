package api

import "github.com/sarchlab/unipatch/program"

// ProgramFinalizer is the part of the finalizer the driver uses.
type ProgramFinalizer interface {
	// FixInputDefects applies the defect fixes to input instructions.
	FixInputDefects(p *program.Program) error

	// FinalizeProgram resets p and finalizes every block.
	FinalizeProgram(p *program.Program) error
}
