package finalize_test

import (
	"errors"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/finalize"
	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
)

func mustVariant(name string) config.Features {
	f, err := config.Variant(name)
	Expect(err).NotTo(HaveOccurred())

	return f
}

func temp(n int) instr.Operand {
	return instr.Operand{Type: instr.RegTemp, Number: n}
}

func internal(n int) instr.Operand {
	return instr.Operand{Type: instr.RegInternal, Number: n}
}

func encode(
	f config.Features,
	op instr.Opcode,
	operands map[instr.Slot]instr.Operand,
) instr.Raw {
	base, err := instr.EncodeOpcode(instr.Raw{}, op, f)
	Expect(err).NotTo(HaveOccurred())

	mode, value, err := instr.DecodeRepeat(base, op, f)
	Expect(err).NotTo(HaveOccurred())

	in := instr.Inst{Op: op, Repeat: mode, RepeatValue: value}
	for slot, d := range operands {
		in.Used = in.Used.With(slot)
		in.Operands[slot] = d
	}

	r, err := instr.Encode(base, in, instr.FCNone, f)
	Expect(err).NotTo(HaveOccurred())

	return r
}

func fmad(f config.Features, dst, src1 instr.Operand) instr.Raw {
	return encode(f, instr.OpFMAD, map[instr.Slot]instr.Operand{
		instr.SlotDst:  dst,
		instr.SlotSrc0: temp(0),
		instr.SlotSrc1: src1,
		instr.SlotSrc2: temp(1),
	})
}

func fdsx(f config.Features, dst, src1 instr.Operand) instr.Raw {
	return encode(f, instr.OpFDSX, map[instr.Slot]instr.Operand{
		instr.SlotDst:  dst,
		instr.SlotSrc1: src1,
	})
}

func setl(f config.Features) instr.Raw {
	return encode(f, instr.OpSETL, map[instr.Slot]instr.Operand{
		instr.SlotSrc1: temp(7),
	})
}

func ld(f config.Features, dst instr.Operand) instr.Raw {
	return encode(f, instr.OpLD, map[instr.Slot]instr.Operand{
		instr.SlotDst:  dst,
		instr.SlotSrc0: temp(0),
		instr.SlotSrc1: temp(1),
	})
}

func add(b *program.Block, r instr.Raw) *program.Instruction {
	inst, err := b.AppendRaw(r, program.Meta{FromInput: true})
	Expect(err).NotTo(HaveOccurred())

	return inst
}

func opsOf(b *program.Block) []instr.Opcode {
	var out []instr.Opcode
	for _, inst := range b.Instructions() {
		out = append(out, inst.Op)
	}

	return out
}

var _ = Describe("Finalizer", func() {
	var (
		f   config.Features
		p   *program.Program
		fin *finalize.Finalizer
	)

	setup := func(variant string) {
		f = mustVariant(variant)
		p = program.MakeBuilder().WithFeatures(f).Build()
		fin = finalize.MakeBuilder().WithFeatures(f).Build("Finalizer")
	}

	Context("when nothing precedes a live read", func() {
		DescribeTable("should fail",
			func(variant string) {
				setup(variant)
				b := p.NewBlock("main", 1)
				add(b, fmad(f, temp(4), internal(0)))
				p.Commit()

				err := fin.FinalizeBlock(b)
				Expect(errors.Is(err, finalize.ErrUnprotectable)).To(BeTrue())
				Expect(b.Finalized).To(BeFalse())
			},
			Entry("paired", "sgx540"),
			Entry("unpaired", "sgx543"),
		)
	})

	Context("when a write is followed by a read", func() {
		It("should flag the writer on unpaired variants", func() {
			setup("sgx543")
			b := p.NewBlock("main", 2)
			writer := add(b, fmad(f, internal(0), temp(3)))
			add(b, fmad(f, temp(4), internal(0)))
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())

			Expect(b.Len()).To(Equal(2))
			Expect(writer.Raw.NoSched()).To(BeTrue())
			Expect(writer.Desc.Has(program.FlagNoSched)).To(BeTrue())
			Expect(b.Finalized).To(BeTrue())
		})

		It("should flag the instruction two back on paired variants", func() {
			setup("sgx540")
			b := p.NewBlock("main", 3)
			head := add(b, fmad(f, temp(5), temp(6)))
			writer := add(b, fmad(f, internal(0), temp(3)))
			add(b, fmad(f, temp(4), internal(0)))
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())

			Expect(b.Len()).To(Equal(3))
			Expect(head.Raw.NoSched()).To(BeTrue())
			Expect(writer.Raw.NoSched()).To(BeFalse())
		})

		It("should insert two no-ops when there is no room", func() {
			setup("sgx540")
			b := p.NewBlock("main", 2)
			writer := add(b, fmad(f, internal(0), temp(3)))
			add(b, fmad(f, temp(4), internal(0)))
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())

			Expect(opsOf(b)).To(Equal([]instr.Opcode{
				instr.OpNOP, instr.OpNOP, instr.OpFMAD, instr.OpFMAD,
			}))
			Expect(b.First().Raw.NoSched()).To(BeTrue())
			Expect(b.First().Next().Raw.NoSched()).To(BeTrue())
			Expect(writer.Raw.NoSched()).To(BeFalse())
		})

		It("should fail when the only room is inside the live range", func() {
			setup("sgx543")
			b := p.NewBlock("main", 3)
			writer := add(b, fmad(f, internal(0), temp(3)))
			add(b, ld(f, temp(5)))
			add(b, fmad(f, temp(4), internal(0)))
			p.Commit()

			err := fin.FinalizeBlock(b)
			Expect(errors.Is(err, finalize.ErrUnprotectable)).To(BeTrue())
			Expect(writer.Raw.NoSched()).To(BeTrue())
			Expect(b.Finalized).To(BeFalse())
		})

		It("should fail when the room follows a sync start", func() {
			setup("sgx540")
			b := p.NewBlock("main", 3)
			add(b, ld(f, temp(5)).WithSyncStart(true))
			add(b, fmad(f, internal(0), temp(3)))
			add(b, fmad(f, temp(4), internal(0)))
			p.Commit()

			err := fin.FinalizeBlock(b)
			Expect(errors.Is(err, finalize.ErrUnprotectable)).To(BeTrue())
			Expect(b.Len()).To(Equal(3))
		})

		It("should not protect across a branch target", func() {
			setup("sgx543")
			b1 := p.NewBlock("a", 1)
			add(b1, fmad(f, internal(0), temp(3)))
			b2 := p.NewBlock("b", 1)
			b2.BranchTarget = true
			add(b2, fmad(f, temp(4), temp(5)))
			p.Commit()

			Expect(fin.FinalizeProgram(p)).To(Succeed())
			Expect(b1.First().Raw.NoSched()).To(BeFalse())
		})

		It("should protect a read at the start of a joined block", func() {
			setup("sgx543")
			b1 := p.NewBlock("a", 1)
			writer := add(b1, fmad(f, internal(1), temp(3)))
			b2 := p.NewBlock("b", 1)
			add(b2, fmad(f, temp(4), internal(1)))
			p.Commit()

			Expect(fin.FinalizeProgram(p)).To(Succeed())
			Expect(writer.Raw.NoSched()).To(BeTrue())
		})
	})

	Context("when an instruction forces a deschedule", func() {
		It("should fail if internal registers are live across it", func() {
			setup("sgx543")
			b := p.NewBlock("main", 3)
			add(b, fmad(f, internal(0), temp(3)))
			add(b, encode(f, instr.OpWDF, nil))
			add(b, fmad(f, temp(4), internal(0)))
			p.Commit()

			err := fin.FinalizeBlock(b)
			Expect(errors.Is(err, finalize.ErrLiveAcrossDeschedule)).To(BeTrue())
		})
	})

	Context("when a gradient needs a sync start", func() {
		It("should flag the predecessor", func() {
			setup("sgx540")
			b := p.NewBlock("main", 2)
			prev := add(b, fmad(f, temp(2), temp(3)))
			add(b, fdsx(f, temp(4), temp(2)))
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())

			Expect(b.Len()).To(Equal(2))
			Expect(prev.Raw.SyncStart()).To(BeTrue())
			Expect(prev.Desc.Has(program.FlagForcesDeschedule)).To(BeTrue())
		})

		DescribeTable("should insert one no-op at a branch target",
			func(variant string) {
				setup(variant)
				b1 := p.NewBlock("a", 1)
				head := add(b1, fmad(f, temp(2), temp(3)))
				b2 := p.NewBlock("b", 1)
				b2.BranchTarget = true
				add(b2, fdsx(f, temp(4), temp(2)))
				p.Commit()

				Expect(fin.FinalizeProgram(p)).To(Succeed())

				Expect(opsOf(b2)).To(Equal([]instr.Opcode{instr.OpNOP, instr.OpFDSX}))
				Expect(b2.First().Raw.SyncStart()).To(BeTrue())
				Expect(b2.First().Raw.NoSched()).To(BeFalse())
				Expect(head.Raw.SyncStart()).To(BeFalse())
			},
			Entry("paired", "sgx540"),
			Entry("unpaired", "sgx543"),
		)

		It("should insert a no-op when the predecessor cannot sync", func() {
			setup("sgx540")
			b := p.NewBlock("main", 2)
			load := add(b, ld(f, temp(2)))
			add(b, fdsx(f, temp(4), temp(2)))
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())

			Expect(opsOf(b)).To(Equal([]instr.Opcode{
				instr.OpLD, instr.OpNOP, instr.OpFDSX,
			}))
			Expect(load.Raw.SyncStart()).To(BeFalse())
			Expect(load.Next().Raw.SyncStart()).To(BeTrue())
			Expect(load.Next().Desc.Has(program.FlagForcesDeschedule)).To(BeTrue())
		})

		DescribeTable("should fail when the flagged predecessor in an earlier block "+
			"leaves internal registers live",
			func(variant string) {
				setup(variant)
				b1 := p.NewBlock("a", 2)
				add(b1, fmad(f, internal(0), temp(3)))
				prev := add(b1, fmad(f, temp(2), temp(3)))
				b2 := p.NewBlock("b", 1)
				add(b2, fdsx(f, temp(4), internal(0)))
				p.Commit()

				err := fin.FinalizeProgram(p)
				Expect(errors.Is(err, finalize.ErrLiveAcrossDeschedule)).To(BeTrue())
				Expect(prev.Raw.SyncStart()).To(BeTrue())
				Expect(b1.Finalized).To(BeTrue())
				Expect(b2.Finalized).To(BeFalse())
			},
			Entry("paired", "sgx540"),
			Entry("unpaired", "sgx543"),
		)

		It("should handle a gradient test", func() {
			setup("sgx543")
			b := p.NewBlock("main", 1)
			b.BranchTarget = true

			r := encode(f, instr.OpTEST, map[instr.Slot]instr.Operand{
				instr.SlotDst:  temp(1),
				instr.SlotSrc1: temp(2),
			})
			r, err := instr.WithTestOp(r, instr.TestFDSY)
			Expect(err).NotTo(HaveOccurred())
			add(b, r)
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())
			Expect(opsOf(b)).To(Equal([]instr.Opcode{instr.OpNOP, instr.OpTEST}))
		})
	})

	Context("when instructions cannot share a group", func() {
		It("should split two link writers", func() {
			setup("sgx540")
			b := p.NewBlock("main", 2)
			add(b, setl(f))
			add(b, setl(f))
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())

			Expect(opsOf(b)).To(Equal([]instr.Opcode{
				instr.OpSETL, instr.OpNOP, instr.OpSETL,
			}))
			Expect(b.Instructions()[1].Raw.NoSched()).To(BeFalse())
		})

		It("should split two branches", func() {
			setup("sgx540")
			b := p.NewBlock("main", 2)
			add(b, encode(f, instr.OpBA, nil))
			add(b, encode(f, instr.OpBR, nil))
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())
			Expect(b.Len()).To(Equal(3))
		})

		It("should leave pairs that straddle a group boundary", func() {
			setup("sgx540")
			b1 := p.NewBlock("a", 1)
			add(b1, fmad(f, temp(2), temp(3)))
			b2 := p.NewBlock("b", 2)
			add(b2, setl(f))
			add(b2, setl(f))
			p.Commit()

			Expect(fin.FinalizeProgram(p)).To(Succeed())
			Expect(b2.Len()).To(Equal(2))
		})

		It("should not pair anything on unpaired variants", func() {
			setup("sgx543")
			b := p.NewBlock("main", 2)
			add(b, setl(f))
			add(b, setl(f))
			p.Commit()

			Expect(fin.FinalizeBlock(b)).To(Succeed())
			Expect(b.Len()).To(Equal(2))
		})
	})

	Context("when the block targets another variant", func() {
		It("should fail even if the names match", func() {
			setup("sgx540")
			b := p.NewBlock("main", 1)
			add(b, fmad(f, temp(2), temp(3)))
			p.Commit()

			unpaired := config.MakeFeatureBuilder().From(f).WithNoPairing(true).Build()
			Expect(unpaired.Name).To(Equal(f.Name))
			other := finalize.MakeBuilder().WithFeatures(unpaired).Build("Other")

			err := other.FinalizeBlock(b)
			Expect(errors.Is(err, finalize.ErrVariantMismatch)).To(BeTrue())
			Expect(b.Finalized).To(BeFalse())
		})
	})

	Context("when finalizing again", func() {
		BeforeEach(func() {
			setup("sgx540")
			b := p.NewBlock("main", 2)
			add(b, fmad(f, internal(0), temp(3)))
			add(b, fmad(f, temp(4), internal(0)))
			p.Commit()
		})

		It("should reject a finalized block", func() {
			Expect(fin.FinalizeBlock(p.First())).To(Succeed())

			err := fin.FinalizeBlock(p.First())
			Expect(errors.Is(err, finalize.ErrAlreadyFinalized)).To(BeTrue())
		})

		It("should reproduce the same words after a reset", func() {
			Expect(fin.FinalizeProgram(p)).To(Succeed())
			words := p.Words()

			Expect(fin.FinalizeProgram(p)).To(Succeed())
			Expect(p.Words()).To(Equal(words))
			Expect(p.Len()).To(Equal(4))
		})
	})

	Context("with hooks", func() {
		var (
			mockCtrl *gomock.Controller
			hook     *MockHook
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			hook = NewMockHook(mockCtrl)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should report inserted no-ops", func() {
			setup("sgx543")
			fin.AcceptHook(hook)

			b := p.NewBlock("main", 1)
			b.BranchTarget = true
			add(b, fdsx(f, temp(4), temp(2)))
			p.Commit()

			hook.EXPECT().Func(gomock.Any()).Do(func(ctx sim.HookCtx) {
				Expect(ctx.Domain).To(BeIdenticalTo(fin))
				Expect(ctx.Pos).To(BeIdenticalTo(finalize.HookPosNopInserted))
				Expect(ctx.Item.(*program.Instruction).Op).To(Equal(instr.OpNOP))
				Expect(ctx.Detail).To(Equal("sync start"))
			})

			Expect(fin.FinalizeBlock(b)).To(Succeed())
		})

		It("should report flags set", func() {
			setup("sgx543")
			fin.AcceptHook(hook)

			b := p.NewBlock("main", 2)
			writer := add(b, fmad(f, internal(0), temp(3)))
			add(b, fmad(f, temp(4), internal(0)))
			p.Commit()

			hook.EXPECT().Func(gomock.Any()).Do(func(ctx sim.HookCtx) {
				Expect(ctx.Pos).To(BeIdenticalTo(finalize.HookPosFlagSet))
				Expect(ctx.Item).To(BeIdenticalTo(writer))
				Expect(ctx.Detail).To(Equal("nosched"))
			})

			Expect(fin.FinalizeBlock(b)).To(Succeed())
		})
	})
})

var _ = Describe("Pack fix", func() {
	var (
		f   config.Features
		p   *program.Program
		fin *finalize.Finalizer
	)

	pack := func(mask uint32) instr.Raw {
		r, err := instr.EncodeOpcode(instr.Raw{}, instr.OpPCKUNPCK, f)
		Expect(err).NotTo(HaveOccurred())

		r = instr.WithPackFormats(r, instr.PackU8, instr.PackF16)
		r, err = instr.WithWriteMask(r, mask)
		Expect(err).NotTo(HaveOccurred())

		for slot, d := range map[instr.Slot]instr.Operand{
			instr.SlotDst:  temp(2),
			instr.SlotSrc1: temp(3),
			instr.SlotSrc2: temp(4),
		} {
			r, err = instr.EncodeOperand(r, instr.OpPCKUNPCK, slot, instr.FCNone, d, f)
			Expect(err).NotTo(HaveOccurred())
		}

		return r
	}

	setup := func(variant string) {
		f = mustVariant(variant)
		p = program.MakeBuilder().WithFeatures(f).WithScratchTemp(60).Build()
		fin = finalize.MakeBuilder().WithFeatures(f).Build("Finalizer")
	}

	It("should split a generated partial write", func() {
		setup("sgx540")
		b := p.NewBlock("main", 1)
		p.Commit()

		conv, err := b.AppendRaw(pack(0x3), program.Meta{ResultOperands: instr.OperandDst})
		Expect(err).NotTo(HaveOccurred())
		Expect(conv.Result).NotTo(BeNil())

		Expect(fin.FinalizeBlock(b)).To(Succeed())

		Expect(opsOf(b)).To(Equal([]instr.Opcode{instr.OpPCKUNPCK, instr.OpPCKUNPCK}))

		Expect(instr.WriteMask(conv.Raw)).To(Equal(uint32(instr.FullWriteMask)))
		dst, err := conv.Operand(instr.SlotDst)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst).To(Equal(temp(60)))
		Expect(conv.Result).To(BeNil())

		copyInst := conv.Next()
		Expect(instr.WriteMask(copyInst.Raw)).To(Equal(uint32(0x3)))
		dstFmt, srcFmt := instr.PackFormats(copyInst.Raw)
		Expect(dstFmt).To(Equal(instr.PackU8))
		Expect(srcFmt).To(Equal(instr.PackU8))

		dst, err = copyInst.Operand(instr.SlotDst)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst).To(Equal(temp(2)))

		src2, err := copyInst.Operand(instr.SlotSrc2)
		Expect(err).NotTo(HaveOccurred())
		Expect(src2).To(Equal(instr.Operand{Type: instr.RegTemp, Number: 60, Component: 1}))

		Expect(copyInst.Result).NotTo(BeNil())
		Expect(copyInst.Meta().ResultOperands).To(Equal(instr.OperandDst))
	})

	It("should leave input instructions to FixInputDefects", func() {
		setup("sgx540")
		b := p.NewBlock("main", 1)
		add(b, pack(0x1))

		Expect(fin.FixInputDefects(p)).To(Succeed())
		p.Commit()
		Expect(b.Len()).To(Equal(2))

		Expect(fin.FinalizeBlock(b)).To(Succeed())
		Expect(b.Len()).To(Equal(2))
	})

	It("should leave full writes alone", func() {
		setup("sgx540")
		b := p.NewBlock("main", 1)
		add(b, pack(instr.FullWriteMask))

		Expect(fin.FixInputDefects(p)).To(Succeed())
		Expect(b.Len()).To(Equal(1))
	})

	It("should do nothing on fixed hardware", func() {
		setup("sgx543")
		b := p.NewBlock("main", 1)
		add(b, pack(0x3))

		Expect(fin.FixInputDefects(p)).To(Succeed())
		Expect(b.Len()).To(Equal(1))
	})
})
