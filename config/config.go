// Package config provides the hardware-variant descriptors of the USE
// instruction set.
package config

import "fmt"

// Features describes one hardware variant. A Features value is built once and
// passed, unchanged, into every codec and finalizer call.
type Features struct {
	Name string

	// NoPairing is set on variants that issue instructions one at a time.
	NoPairing bool

	// UnifiedInternalRegs is set when the internal registers are addressed
	// through the top of the temporary register range instead of a bank of
	// their own.
	UnifiedInternalRegs bool
	NumInternalRegs     int

	// TestFormatControl lets TEST and TESTMASK pick their format control
	// from their own format-select field.
	TestFormatControl bool

	HasFNRM    bool
	HasIMA32   bool
	HasVisTest bool

	// PackPartialWriteBug marks variants whose pack unit corrupts partial
	// writes of converted data.
	PackPartialWriteBug bool

	MaxRepeat     int
	MaxFetchCount int
}

// PairGranularity returns the number of instructions in one scheduling group.
func (f Features) PairGranularity() int {
	if f.NoPairing {
		return 1
	}

	return 2
}

// NoSchedDistance returns how many instructions ahead of a protected
// instruction the NOSCHED flag must be set.
func (f Features) NoSchedDistance() int {
	return f.PairGranularity()
}

// Validate checks that the numeric limits are within what the encoding can
// express.
func (f Features) Validate() error {
	if f.NumInternalRegs < 1 || f.NumInternalRegs > 8 {
		return fmt.Errorf("config %q: %d internal registers, want 1..8",
			f.Name, f.NumInternalRegs)
	}

	if f.MaxRepeat < 1 || f.MaxRepeat > 16 {
		return fmt.Errorf("config %q: max repeat %d, want 1..16",
			f.Name, f.MaxRepeat)
	}

	if f.MaxFetchCount < 1 || f.MaxFetchCount > 16 {
		return fmt.Errorf("config %q: max fetch count %d, want 1..16",
			f.Name, f.MaxFetchCount)
	}

	return nil
}

// FeatureBuilder can build feature descriptors.
type FeatureBuilder struct {
	f Features
}

// MakeFeatureBuilder returns a builder that starts from the most basic
// variant.
func MakeFeatureBuilder() FeatureBuilder {
	return FeatureBuilder{
		f: Features{
			Name:            "custom",
			NumInternalRegs: 3,
			MaxRepeat:       16,
			MaxFetchCount:   16,
		},
	}
}

// From starts the builder from an existing descriptor.
func (b FeatureBuilder) From(f Features) FeatureBuilder {
	b.f = f
	return b
}

// WithName sets the name of the variant.
func (b FeatureBuilder) WithName(name string) FeatureBuilder {
	b.f.Name = name
	return b
}

// WithNoPairing sets whether the variant issues single instructions.
func (b FeatureBuilder) WithNoPairing(noPairing bool) FeatureBuilder {
	b.f.NoPairing = noPairing
	return b
}

// WithUnifiedInternalRegs makes internal registers alias the top
// temporaries.
func (b FeatureBuilder) WithUnifiedInternalRegs(unified bool) FeatureBuilder {
	b.f.UnifiedInternalRegs = unified
	return b
}

// WithNumInternalRegs sets the size of the internal register file.
func (b FeatureBuilder) WithNumInternalRegs(n int) FeatureBuilder {
	b.f.NumInternalRegs = n
	return b
}

// WithTestFormatControl sets whether TEST selects its own format control.
func (b FeatureBuilder) WithTestFormatControl(enabled bool) FeatureBuilder {
	b.f.TestFormatControl = enabled
	return b
}

// WithFNRM enables the FNRM opcode.
func (b FeatureBuilder) WithFNRM(enabled bool) FeatureBuilder {
	b.f.HasFNRM = enabled
	return b
}

// WithIMA32 enables the IMA32 opcode.
func (b FeatureBuilder) WithIMA32(enabled bool) FeatureBuilder {
	b.f.HasIMA32 = enabled
	return b
}

// WithVisTest enables the visibility test opcodes.
func (b FeatureBuilder) WithVisTest(enabled bool) FeatureBuilder {
	b.f.HasVisTest = enabled
	return b
}

// WithPackPartialWriteBug marks the variant as needing the pack fix.
func (b FeatureBuilder) WithPackPartialWriteBug(affected bool) FeatureBuilder {
	b.f.PackPartialWriteBug = affected
	return b
}

// WithMaxRepeat sets the largest repeat count of any instruction.
func (b FeatureBuilder) WithMaxRepeat(n int) FeatureBuilder {
	b.f.MaxRepeat = n
	return b
}

// WithMaxFetchCount sets the largest fetch count of memory instructions.
func (b FeatureBuilder) WithMaxFetchCount(n int) FeatureBuilder {
	b.f.MaxFetchCount = n
	return b
}

// Build returns the descriptor. It panics if the descriptor is invalid.
func (b FeatureBuilder) Build() Features {
	if err := b.f.Validate(); err != nil {
		panic(err)
	}

	return b.f
}
