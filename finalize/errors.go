package finalize

import "errors"

var (
	// ErrUnprotectable is returned when no instruction can carry the NOSCHED
	// flag that an internal register live range needs.
	ErrUnprotectable = errors.New("internal registers cannot be protected")

	// ErrLiveAcrossDeschedule is returned when internal registers are live
	// across an instruction that always deschedules.
	ErrLiveAcrossDeschedule = errors.New("internal registers live across a forced deschedule")

	// ErrAlreadyFinalized is returned when a block is finalized twice without
	// a reset in between.
	ErrAlreadyFinalized = errors.New("block already finalized")

	// ErrPackFix is returned when the pack/unpack defect fix cannot be
	// applied to a matched instruction.
	ErrPackFix = errors.New("pack fix not applicable")

	// ErrVariantMismatch is returned when a block was built for a different
	// hardware variant than the finalizer targets.
	ErrVariantMismatch = errors.New("block and finalizer variants differ")
)
