// Package verify re-checks finalized USE programs.
//
// RunLint walks a program in address order and reports every place where a
// scheduling rule does not hold:
//
//   - NOSCHED: an instruction has internal registers live before it, but the
//     instruction one scheduling group back (along the joined list) does not
//     disable descheduling.
//   - SYNCSTART: a gradient instruction is not preceded by an instruction
//     carrying the synchronisation-start flag.
//   - PAIR: two flow-control instructions, or two link writers, share a
//     scheduling group.
//   - DESCHED: internal registers are live after an instruction that always
//     deschedules.
//   - DECODE: an instruction cannot be decoded for the target variant.
//
// The finalizer guarantees none of these hold for a program it accepted, so
// any issue points at a finalizer bug or at words edited by hand.
//
// # Usage Example
//
//	issues := verify.RunLint(prog)
//	for _, issue := range issues {
//	    log.Printf("[%s] %s@%d: %s", issue.Type, issue.Block, issue.Addr, issue.Message)
//	}
//
//	report := verify.GenerateReport(prog)
//	report.WriteReport(os.Stdout)
package verify

// IssueType categorizes lint issues
type IssueType string

const (
	IssueNoSched   IssueType = "NOSCHED"   // Live internal registers not protected
	IssueSyncStart IssueType = "SYNCSTART" // Gradient without a sync start
	IssuePair      IssueType = "PAIR"      // Illegal pair in one scheduling group
	IssueDesched   IssueType = "DESCHED"   // Live internal registers across a forced deschedule
	IssueDecode    IssueType = "DECODE"    // Undecodable instruction
)

// IssueTypes lists the issue types in report order.
var IssueTypes = []IssueType{
	IssueDecode, IssueNoSched, IssueSyncStart, IssuePair, IssueDesched,
}

// Issue represents a single lint issue
type Issue struct {
	Type    IssueType              // Rule that failed
	Block   string                 // Label of the block holding the instruction
	Addr    int                    // Program address (-1 if not applicable)
	Op      string                 // Opcode name
	Message string                 // Human-readable description
	Details map[string]interface{} // Additional structured data
}
