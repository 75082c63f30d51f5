package verify

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/unipatch/program"
)

// VerificationReport represents a complete verification report
type VerificationReport struct {
	Variant          string
	BlockCount       int
	InstructionCount int
	LintIssues       []Issue
	ByType           map[IssueType][]Issue
}

// GenerateReport runs lint over the program and returns a report
func GenerateReport(p *program.Program) *VerificationReport {
	report := &VerificationReport{
		Variant:          p.Features.Name,
		BlockCount:       p.NumBlocks(),
		InstructionCount: p.Len(),
		ByType:           make(map[IssueType][]Issue),
	}

	report.LintIssues = RunLint(p)

	for _, issue := range report.LintIssues {
		report.ByType[issue.Type] = append(report.ByType[issue.Type], issue)
	}

	return report
}

// OK reports whether the lint found nothing.
func (r *VerificationReport) OK() bool {
	return len(r.LintIssues) == 0
}

// WriteReport writes a formatted report to a writer
func (r *VerificationReport) WriteReport(w io.Writer) {
	separator := strings.Repeat("=", 60)

	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "USE PROGRAM VERIFICATION REPORT (%s)\n", r.Variant)
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "%d instructions in %d blocks\n\n", r.InstructionCount, r.BlockCount)

	if r.OK() {
		fmt.Fprintln(w, "No lint issues found")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%d lint issues", len(r.LintIssues)))
	t.AppendHeader(table.Row{"Type", "Block", "Addr", "Op", "Message"})

	for _, typ := range IssueTypes {
		for _, issue := range r.ByType[typ] {
			t.AppendRow(table.Row{issue.Type, issue.Block, issue.Addr, issue.Op, issue.Message})
		}
	}

	t.Render()

	fmt.Fprintln(w)

	for _, typ := range IssueTypes {
		if n := len(r.ByType[typ]); n > 0 {
			fmt.Fprintf(w, "%s: %d\n", typ, n)
		}
	}
}

// SaveReportToFile saves the report to a file
func (r *VerificationReport) SaveReportToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	r.WriteReport(file)
	return nil
}
