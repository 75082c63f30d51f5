package program_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
)

var _ = Describe("RegSet", func() {
	It("should print its members", func() {
		Expect(program.RegSet(0).String()).To(Equal("-"))
		Expect(program.RegSet(0).With(0).With(2).String()).To(Equal("i0,i2"))
		Expect(program.RegSet(0).With(9)).To(BeZero())
	})
})

var _ = Describe("Liveness", func() {
	var (
		f config.Features
		p *program.Program
	)

	BeforeEach(func() {
		f = mustVariant("sgx540")
		p = program.MakeBuilder().WithFeatures(f).Build()
	})

	It("should track a value from its definition to its use", func() {
		b := p.NewBlock("main", 3)
		def := appendInst(b, fmad(f, internal(0), temp(3)))
		mid := appendInst(b, fmad(f, temp(4), temp(5)))
		use := appendInst(b, fmad(f, temp(6), internal(0)))

		live, err := program.ComputeLiveness(p)
		Expect(err).NotTo(HaveOccurred())

		Expect(live.Before(def)).To(BeZero())
		Expect(live.After(def)).To(Equal(program.RegSet(0).With(0)))
		Expect(live.Before(mid).Has(0)).To(BeTrue())
		Expect(live.Before(use).Has(0)).To(BeTrue())
		Expect(live.After(use)).To(BeZero())
	})

	It("should flow into the previous block", func() {
		b1 := p.NewBlock("a", 1)
		def := appendInst(b1, fmad(f, internal(1), temp(3)))
		b2 := p.NewBlock("b", 1)
		appendInst(b2, fmad(f, temp(6), internal(1)))

		live, err := program.ComputeLiveness(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(live.After(def).Has(1)).To(BeTrue())
	})

	It("should stop at a branch target", func() {
		b1 := p.NewBlock("a", 1)
		def := appendInst(b1, fmad(f, internal(1), temp(3)))
		b2 := p.NewBlock("b", 1)
		b2.BranchTarget = true
		appendInst(b2, fmad(f, temp(6), internal(1)))

		live, err := program.ComputeLiveness(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(live.After(def)).To(BeZero())
	})

	It("should not kill on a predicated write", func() {
		b := p.NewBlock("main", 2)
		r, err := fmad(f, internal(2), temp(3)).WithPredicate(1)
		Expect(err).NotTo(HaveOccurred())
		def := appendInst(b, r)
		appendInst(b, fmad(f, temp(6), internal(2)))

		live, err := program.ComputeLiveness(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(live.Before(def).Has(2)).To(BeTrue())
	})

	It("should expand repeats", func() {
		b := p.NewBlock("main", 1)

		r, err := instr.EncodeRepeat(fmad(f, temp(6), internal(0)),
			instr.OpFMAD, instr.RepeatCount, 2, f)
		Expect(err).NotTo(HaveOccurred())
		inst := appendInst(b, r)

		uses, defs, err := program.InternalAccesses(inst)
		Expect(err).NotTo(HaveOccurred())
		Expect(uses).To(Equal(program.RegSet(0).With(0).With(1)))
		Expect(defs).To(BeZero())
	})
})
