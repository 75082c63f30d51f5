package verify

import (
	"fmt"

	"github.com/sarchlab/unipatch/instr"
	"github.com/sarchlab/unipatch/program"
)

// RunLint performs the scheduling checks on a finalized program.
// Returns a list of issues found, or empty list if no issues.
func RunLint(p *program.Program) []Issue {
	var issues []Issue

	insts := p.Instructions()

	// DECODE: every instruction must decode before anything else is checked
	for addr, inst := range insts {
		if _, err := inst.Decode(); err != nil {
			issues = append(issues, newIssue(IssueDecode, inst, addr, err.Error(), nil))
		}
	}

	if len(issues) > 0 {
		return issues
	}

	live, err := program.ComputeLiveness(p)
	if err != nil {
		return append(issues, Issue{
			Type:    IssueDecode,
			Addr:    -1,
			Message: fmt.Sprintf("liveness: %v", err),
		})
	}

	f := p.Features
	d := f.NoSchedDistance()
	g := f.PairGranularity()

	for addr, inst := range insts {
		// NOSCHED: the deschedule point d instructions back must be closed
		if regs := live.Before(inst); regs != 0 {
			c := inst
			for i := 0; i < d && c != nil; i++ {
				c = c.PrevJoined()
			}

			if c == nil || !c.Raw.NoSched() {
				issues = append(issues, newIssue(IssueNoSched, inst, addr,
					fmt.Sprintf("%s live before %s is not protected", regs, inst.Op),
					map[string]interface{}{"live": regs.String(), "distance": d}))
			}
		}

		// SYNCSTART: gradients need a flagged predecessor
		if instr.RequiresSyncStart(inst.Op, inst.Raw) {
			prev := inst.PrevJoined()
			if prev == nil || !prev.Raw.SyncStart() {
				issues = append(issues, newIssue(IssueSyncStart, inst, addr,
					fmt.Sprintf("%s is not preceded by a sync start", inst.Op), nil))
			}
		}

		// PAIR: look at the physical predecessor in the same group
		if g > 1 && addr%g != 0 && illegalPair(insts[addr-1], inst) {
			issues = append(issues, newIssue(IssuePair, inst, addr,
				fmt.Sprintf("%s shares a group with %s", inst.Op, insts[addr-1].Op),
				map[string]interface{}{"group": addr / g}))
		}

		// DESCHED: nothing may be live after a forced deschedule
		if inst.Desc.Has(program.FlagForcesDeschedule) {
			if regs := live.After(inst); regs != 0 {
				issues = append(issues, newIssue(IssueDesched, inst, addr,
					fmt.Sprintf("%s live across %s", regs, inst.Op),
					map[string]interface{}{"live": regs.String()}))
			}
		}
	}

	return issues
}

func newIssue(
	t IssueType,
	inst *program.Instruction,
	addr int,
	msg string,
	details map[string]interface{},
) Issue {
	return Issue{
		Type:    t,
		Block:   inst.Block().Label,
		Addr:    addr,
		Op:      inst.Op.String(),
		Message: msg,
		Details: details,
	}
}

func illegalPair(a, b *program.Instruction) bool {
	if a.Op.IsFlowControl() && b.Op.IsFlowControl() {
		return true
	}

	return instr.WritesLink(a.Op, a.Raw) && instr.WritesLink(b.Op, b.Raw)
}
