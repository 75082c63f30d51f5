// Package api defines the driver that takes a patchable USE program from its
// input form to final instruction words.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
	"github.com/sarchlab/unipatch/verify"
)

// ErrNoProgram is returned when Finalize is called before a program is set.
var ErrNoProgram = errors.New("no program loaded")

// ErrLint is returned when a finalized program does not pass the lint.
var ErrLint = errors.New("finalized program failed lint")

// Result is the outcome of one finalization.
type Result struct {
	Words  []instr.Raw
	Issues []verify.Issue
}

// Driver provides the interface to finalize programs.
type Driver interface {
	// Features returns the hardware variant the driver targets.
	Features() config.Features

	// LoadProgram reads a program from a YAML file and sets it.
	LoadProgram(path string) error

	// SetProgram fixes the input defects of p and commits it. The program
	// must not have been committed yet.
	SetProgram(p *program.Program) error

	// Program returns the current program.
	Program() *program.Program

	// Finalize finalizes the current program from its committed content and
	// lints the result. It can be called again to redo the work.
	Finalize() (*Result, error)

	// WriteListing prints the current program.
	WriteListing(w io.Writer) error
}

type driverImpl struct {
	name        string
	features    config.Features
	finalizer   ProgramFinalizer
	resultSlots int

	prog *program.Program
}

func (d *driverImpl) Features() config.Features {
	return d.features
}

func (d *driverImpl) LoadProgram(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", d.name, err)
	}

	b := program.MakeBuilder().
		WithFeatures(d.features).
		WithResultSlots(d.resultSlots)

	p, err := program.ParseProgramWith(data, b)
	if err != nil {
		return fmt.Errorf("%s: load %s: %w", d.name, path, err)
	}

	return d.SetProgram(p)
}

func (d *driverImpl) SetProgram(p *program.Program) error {
	if err := d.finalizer.FixInputDefects(p); err != nil {
		return fmt.Errorf("%s: %w", d.name, err)
	}

	p.Commit()
	d.prog = p

	slog.Info("program set", "driver", d.name, "variant", d.features.Name,
		"blocks", p.NumBlocks(), "instructions", p.Len())

	return nil
}

func (d *driverImpl) Program() *program.Program {
	return d.prog
}

func (d *driverImpl) Finalize() (*Result, error) {
	if d.prog == nil {
		return nil, ErrNoProgram
	}

	if err := d.finalizer.FinalizeProgram(d.prog); err != nil {
		return nil, fmt.Errorf("%s: %w", d.name, err)
	}

	res := &Result{
		Words:  d.prog.Words(),
		Issues: verify.RunLint(d.prog),
	}

	slog.Info("program finalized", "driver", d.name,
		"instructions", len(res.Words), "issues", len(res.Issues))

	if len(res.Issues) > 0 {
		return res, fmt.Errorf("%w: %d issues", ErrLint, len(res.Issues))
	}

	return res, nil
}

func (d *driverImpl) WriteListing(w io.Writer) error {
	if d.prog == nil {
		return ErrNoProgram
	}

	return program.WriteListing(w, d.prog)
}
