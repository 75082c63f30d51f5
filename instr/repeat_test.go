package instr_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
)

var _ = Describe("Repeat", func() {
	var f config.Features

	BeforeEach(func() {
		f = mustVariant("sgx543")
	})

	It("should read a repeat mask", func() {
		r, err := instr.EncodeRepeat(opRaw(instr.OpFMAD, f), instr.OpFMAD,
			instr.RepeatMask, 0x5, f)
		Expect(err).NotTo(HaveOccurred())

		mode, v, err := instr.DecodeRepeat(r, instr.OpFMAD, f)
		Expect(err).NotTo(HaveOccurred())
		Expect(mode).To(Equal(instr.RepeatMask))
		Expect(v).To(Equal(5))
		Expect(instr.RepeatIterations(mode, v)).To(Equal([]int{0, 2}))
	})

	It("should read a repeat count on mask-capable opcodes", func() {
		r, err := instr.EncodeRepeat(opRaw(instr.OpFRCP, f), instr.OpFRCP,
			instr.RepeatCount, 16, f)
		Expect(err).NotTo(HaveOccurred())

		mode, v, err := instr.DecodeRepeat(r, instr.OpFRCP, f)
		Expect(err).NotTo(HaveOccurred())
		Expect(mode).To(Equal(instr.RepeatCount))
		Expect(v).To(Equal(16))
	})

	It("should reject an empty mask", func() {
		r := opRaw(instr.OpFMAD, f)
		r[1] |= 1 << 14

		_, _, err := instr.DecodeRepeat(r, instr.OpFMAD, f)
		Expect(err).To(HaveOccurred())
	})

	It("should reject a mask on count-only opcodes", func() {
		r := opRaw(instr.OpXOR, f)
		r[1] |= 1<<14 | 1<<10

		_, _, err := instr.DecodeRepeat(r, instr.OpXOR, f)
		Expect(err).To(HaveOccurred())

		_, err = instr.EncodeRepeat(opRaw(instr.OpXOR, f), instr.OpXOR,
			instr.RepeatMask, 1, f)
		Expect(err).To(HaveOccurred())
	})

	It("should apply the per-opcode maximum", func() {
		Expect(instr.MaxRepeat(instr.OpDOT34, f)).To(Equal(4))

		_, err := instr.EncodeRepeat(opRaw(instr.OpDOT34, f), instr.OpDOT34,
			instr.RepeatCount, 5, f)
		Expect(err).To(HaveOccurred())

		r := opRaw(instr.OpDOT34, f)
		r[1] |= 4 << 10
		_, _, err = instr.DecodeRepeat(r, instr.OpDOT34, f)
		Expect(err).To(HaveOccurred())
	})

	It("should apply the variant maximum", func() {
		small := config.MakeFeatureBuilder().WithMaxRepeat(8).Build()

		_, err := instr.EncodeRepeat(opRaw(instr.OpXOR, small), instr.OpXOR,
			instr.RepeatCount, 9, small)
		Expect(err).To(HaveOccurred())
	})

	It("should limit fetch counts", func() {
		old := mustVariant("sgx530")

		r, err := instr.EncodeRepeat(opRaw(instr.OpLD, old), instr.OpLD,
			instr.RepeatFetch, 8, old)
		Expect(err).NotTo(HaveOccurred())

		mode, v, err := instr.DecodeRepeat(r, instr.OpLD, old)
		Expect(err).NotTo(HaveOccurred())
		Expect(mode).To(Equal(instr.RepeatFetch))
		Expect(v).To(Equal(8))

		_, err = instr.EncodeRepeat(opRaw(instr.OpLD, old), instr.OpLD,
			instr.RepeatFetch, 9, old)
		Expect(err).To(HaveOccurred())
	})

	It("should ignore the repeat bits of opcodes without repeat", func() {
		r, err := instr.WithWriteMask(opRaw(instr.OpPCKUNPCK, f), 0x3)
		Expect(err).NotTo(HaveOccurred())

		mode, v, err := instr.DecodeRepeat(r, instr.OpPCKUNPCK, f)
		Expect(err).NotTo(HaveOccurred())
		Expect(mode).To(Equal(instr.RepeatNone))
		Expect(v).To(Equal(1))

		_, err = instr.EncodeRepeat(r, instr.OpPCKUNPCK, instr.RepeatCount, 2, f)
		Expect(err).To(HaveOccurred())
	})
})
