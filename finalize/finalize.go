// Package finalize makes instruction blocks safe to run. It inserts no-ops
// and sets scheduling flags so that internal registers never live across a
// deschedule, gradient instructions are synchronised and illegal instruction
// pairs are broken up.
package finalize

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
)

// HookPosNopInserted marks when the finalizer inserts an instruction.
var HookPosNopInserted = &sim.HookPos{Name: "Nop Inserted"}

// HookPosFlagSet marks when the finalizer sets NOSCHED or SYNCSTART on an
// existing instruction.
var HookPosFlagSet = &sim.HookPos{Name: "Flag Set"}

// HookPosInstRewritten marks when a defect fix rewrites an instruction.
var HookPosInstRewritten = &sim.HookPos{Name: "Inst Rewritten"}

// Finalizer runs the scheduling passes over blocks.
type Finalizer struct {
	*sim.HookableBase

	name     string
	features config.Features
}

// Builder can build finalizers.
type Builder struct {
	features config.Features
}

// MakeBuilder returns a builder for the default variant.
func MakeBuilder() Builder {
	return Builder{
		features: config.MakeFeatureBuilder().Build(),
	}
}

// WithFeatures sets the hardware variant.
func (b Builder) WithFeatures(f config.Features) Builder {
	b.features = f
	return b
}

// Build creates a finalizer.
func (b Builder) Build(name string) *Finalizer {
	if err := b.features.Validate(); err != nil {
		panic(err)
	}

	return &Finalizer{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		features:     b.features,
	}
}

// Name returns the name of the finalizer.
func (f *Finalizer) Name() string {
	return f.name
}

// Features returns the hardware variant the finalizer targets.
func (f *Finalizer) Features() config.Features {
	return f.features
}

// FinalizeBlock runs every pass over b. Blocks must be finalized in program
// order, and a finalized block must be reset before it is finalized again.
func (f *Finalizer) FinalizeBlock(b *program.Block) error {
	if b.Finalized {
		return fmt.Errorf("%w: block %s", ErrAlreadyFinalized, b.Label)
	}

	if b.Program().Features != f.features {
		return fmt.Errorf("%w: block %s (%s), finalizer %s (%s)", ErrVariantMismatch,
			b.Label, b.Program().Features.Name, f.name, f.features.Name)
	}

	passes := []struct {
		name string
		run  func(*program.Block) error
	}{
		{"pack fix", f.fixGeneratedDefects},
		{"illegal pairs", f.fixIllegalPairs},
		{"sync start", f.fixSyncStart},
		{"illegal pairs", f.fixIllegalPairs},
		{"deschedule check", f.checkForcedDeschedules},
		{"no sched", f.fixNoSched},
	}

	for _, pass := range passes {
		if err := pass.run(b); err != nil {
			return err
		}

		Trace("finalize pass done", "finalizer", f.name, "block", b.Label,
			"pass", pass.name, "len", b.Len())
	}

	b.Finalized = true

	return nil
}

// FinalizeProgram resets p and finalizes every block in order.
func (f *Finalizer) FinalizeProgram(p *program.Program) error {
	if err := p.Reset(); err != nil {
		return err
	}

	for _, b := range p.Blocks() {
		if err := f.FinalizeBlock(b); err != nil {
			return err
		}
	}

	return nil
}

// FixInputDefects applies the defect fixes to the instructions taken from the
// input program. It runs once, before the program is committed.
func (f *Finalizer) FixInputDefects(p *program.Program) error {
	for _, b := range p.Blocks() {
		if err := f.fixDefects(b, true); err != nil {
			return err
		}
	}

	return nil
}

type nopKind int

const (
	nopPlain nopKind = iota
	nopNoSched
	nopSyncStart
)

func (f *Finalizer) nopRaw(kind nopKind) (instr.Raw, error) {
	r, err := instr.EncodeOpcode(instr.Raw{}, instr.OpNOP, f.features)
	if err != nil {
		return r, err
	}

	switch kind {
	case nopNoSched:
		r = r.WithNoSched(true)
	case nopSyncStart:
		r = r.WithSyncStart(true)
	}

	return r, nil
}

// insertNop inserts a no-op in front of before, which must not be nil.
func (f *Finalizer) insertNop(
	before *program.Instruction,
	kind nopKind,
	reason string,
) (*program.Instruction, error) {
	r, err := f.nopRaw(kind)
	if err != nil {
		return nil, err
	}

	b := before.Block()

	nop, err := b.InsertRaw(before, instr.OpNOP, r, program.Meta{})
	if err != nil {
		return nil, fmt.Errorf("insert nop for %s: %w", reason, err)
	}

	Trace("nop inserted", "block", b.Label, "reason", reason, "raw", r)

	f.InvokeHook(sim.HookCtx{
		Domain: f,
		Pos:    HookPosNopInserted,
		Item:   nop,
		Detail: reason,
	})

	return nop, nil
}

func (f *Finalizer) setFlag(inst *program.Instruction, flag string) error {
	var err error

	switch flag {
	case "nosched":
		err = inst.SetNoSched()
	case "syncstart":
		err = inst.SetSyncStart()
	default:
		panic("unknown flag " + flag)
	}

	if err != nil {
		return err
	}

	Trace("flag set", "block", inst.Block().Label, "op", inst.Op, "flag", flag)

	f.InvokeHook(sim.HookCtx{
		Domain: f,
		Pos:    HookPosFlagSet,
		Item:   inst,
		Detail: flag,
	})

	return nil
}

// back walks n instructions back along the joined list.
func back(inst *program.Instruction, n int) *program.Instruction {
	for ; inst != nil && n > 0; n-- {
		inst = inst.PrevJoined()
	}

	return inst
}
