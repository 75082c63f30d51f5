package api

import (
	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/finalize"
)

// DriverBuilder creates a new instance of Driver.
type DriverBuilder struct {
	features    config.Features
	finalizer   ProgramFinalizer
	resultSlots int
}

// MakeDriverBuilder returns a builder for the default variant.
func MakeDriverBuilder() DriverBuilder {
	return DriverBuilder{
		features:    config.MakeFeatureBuilder().Build(),
		resultSlots: 8,
	}
}

// WithFeatures sets the hardware variant.
func (b DriverBuilder) WithFeatures(f config.Features) DriverBuilder {
	b.features = f
	return b
}

// WithFinalizer replaces the finalizer built for the variant.
func (b DriverBuilder) WithFinalizer(f ProgramFinalizer) DriverBuilder {
	b.finalizer = f
	return b
}

// WithResultSlots sets the number of result references programs may hold.
func (b DriverBuilder) WithResultSlots(n int) DriverBuilder {
	if n < 1 {
		panic("need at least one result slot")
	}

	b.resultSlots = n
	return b
}

// Build create a driver.
func (b DriverBuilder) Build(name string) Driver {
	d := &driverImpl{
		name:        name,
		features:    b.features,
		finalizer:   b.finalizer,
		resultSlots: b.resultSlots,
	}

	if d.finalizer == nil {
		d.finalizer = finalize.MakeBuilder().
			WithFeatures(b.features).
			Build(name + ".Finalizer")
	}

	return d
}
