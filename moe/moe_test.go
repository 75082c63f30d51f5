package moe_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/moe"
)

var _ = Describe("State", func() {
	var f config.Features

	BeforeEach(func() {
		var err error
		f, err = config.Variant("sgx543")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should start in increment mode", func() {
		s := moe.InitialForBlock(nil)
		for _, slot := range s.Slots {
			Expect(slot.Swizzle).To(BeFalse())
			Expect(slot.Increment).To(Equal(int8(1)))
			Expect(slot.BaseOffset).To(BeZero())
		}

		Expect(s.EFOFormatControl).To(BeFalse())
	})

	It("should inherit the previous block's state", func() {
		prev := moe.Default()
		prev.ColourFormatControl = true

		Expect(moe.InitialForBlock(&prev)).To(Equal(prev))
	})

	It("should load increments and swizzles", func() {
		slots := [instr.NumSlots]moe.Slot{
			{Increment: -2},
			{Swizzle: true, Pattern: [4]uint8{3, 2, 1, 0}},
			{Increment: 4},
			{Increment: 1},
		}

		r, err := moe.EncodeSMLSI(slots, f)
		Expect(err).NotTo(HaveOccurred())

		op, err := instr.DecodeOpcode(r, f)
		Expect(err).NotTo(HaveOccurred())
		Expect(op).To(Equal(instr.OpSMLSI))

		s := moe.Default()
		moe.Apply(r, op, &s)
		Expect(s.Slots).To(Equal(slots))
	})

	It("should load base offsets", func() {
		offsets := [instr.NumSlots]uint16{0x123, 0xFFF, 0xABC, 0x801}

		r, err := moe.EncodeSMBO(offsets, f)
		Expect(err).NotTo(HaveOccurred())
		Expect(r[0] & 0xFFF).To(Equal(uint32(0x123)))
		Expect(r[0] >> 24).To(Equal(uint32(0xBC)))
		Expect(r[1] & 0xF).To(Equal(uint32(0xA)))

		s := moe.Default()
		moe.Apply(r, instr.OpSMBO, &s)

		for i, off := range offsets {
			Expect(s.Slots[i].BaseOffset).To(Equal(off))
			Expect(s.Slots[i].Increment).To(Equal(int8(1)))
		}

		_, err = moe.EncodeSMBO([instr.NumSlots]uint16{0x1000}, f)
		Expect(err).To(HaveOccurred())
	})

	It("should ignore other opcodes", func() {
		s := moe.Default()
		moe.Apply(instr.Raw{0xFFFFFFFF, 0xFFFFFFFF}, instr.OpFMAD, &s)
		Expect(s).To(Equal(moe.Default()))
	})

	Context("format control", func() {
		It("should follow the enables for the fused and colour families", func() {
			r, err := moe.EncodeSETFC(true, false, f)
			Expect(err).NotTo(HaveOccurred())

			s := moe.Default()
			moe.Apply(r, instr.OpSETFC, &s)

			Expect(moe.FormatControlFor(instr.OpFMAD, instr.Raw{}, &s, f)).
				To(Equal(instr.FCF32F16))
			Expect(moe.FormatControlFor(instr.OpSOP2, instr.Raw{}, &s, f)).
				To(Equal(instr.FCNone))
			Expect(moe.FormatControlFor(instr.OpXOR, instr.Raw{}, &s, f)).
				To(Equal(instr.FCNone))

			s.ColourFormatControl = true
			Expect(moe.FormatControlFor(instr.OpLRP, instr.Raw{}, &s, f)).
				To(Equal(instr.FCU8C10))
		})

		It("should let TEST pick its own mode where supported", func() {
			r, err := instr.WithTestFormatSelect(instr.Raw{}, 2)
			Expect(err).NotTo(HaveOccurred())

			s := moe.Default()
			Expect(moe.FormatControlFor(instr.OpTEST, r, &s, f)).
				To(Equal(instr.FCU8C10))

			old, err := config.Variant("sgx540")
			Expect(err).NotTo(HaveOccurred())
			Expect(moe.FormatControlFor(instr.OpTEST, r, &s, old)).
				To(Equal(instr.FCNone))
		})
	})

	It("should expand repeated operands", func() {
		s := moe.Default()
		s.Slots[instr.SlotSrc1].Increment = 2
		s.Slots[instr.SlotSrc2] = moe.Slot{Swizzle: true, Pattern: [4]uint8{1, 1, 0, 3}}

		Expect(s.Accessed(instr.SlotSrc1, 0, []int{0, 1, 2})).To(Equal([]int{0, 2, 4}))
		Expect(s.Accessed(instr.SlotSrc2, 1, []int{0, 2, 3})).To(Equal([]int{2, 1, 4}))
	})
})
