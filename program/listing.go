package program

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteListing prints the program as a table with one row per instruction.
func WriteListing(w io.Writer, p *Program) error {
	live, err := ComputeLiveness(p)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s: %d instructions", p.Features.Name, p.Len()))
	t.AppendHeader(table.Row{"Addr", "Block", "Words", "Instruction", "Flags", "Live In"})

	addr := 0
	for _, b := range p.Blocks() {
		label := b.Label
		if b.BranchTarget {
			label += "*"
		}

		for inst := b.First(); inst != nil; inst = inst.Next() {
			text := inst.Op.String()
			if in, err := inst.Decode(); err == nil {
				text = in.String()
			}

			t.AppendRow(table.Row{
				addr, label, inst.Raw.String(), text,
				flagString(inst), live.Before(inst).String(),
			})

			addr++
			label = ""
		}
	}

	t.Render()

	return nil
}

func flagString(inst *Instruction) string {
	var sb strings.Builder

	flags := []struct {
		flag DescFlag
		c    byte
	}{
		{FlagNoSched, 'N'},
		{FlagSyncStart, 'S'},
		{FlagForcesDeschedule, 'D'},
		{FlagPartialDestWrite, 'P'},
		{FlagFromInput, 'I'},
	}

	for _, fl := range flags {
		if inst.Desc.Has(fl.flag) {
			sb.WriteByte(fl.c)
		} else {
			sb.WriteByte('.')
		}
	}

	return sb.String()
}
