// Command uselint checks the scheduling rules of an already finalized USE
// program and prints a verification report.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/program"
	"github.com/sarchlab/unipatch/verify"
)

func main() {
	variant := flag.String("variant", "sgx543", "hardware variant")
	progPath := flag.String("program", "", "YAML program file holding finalized words")
	out := flag.String("report", "", "also save the report to this file")
	flag.Parse()

	f, err := config.Variant(*variant)
	if err != nil {
		log.Fatal(err)
	}

	p, err := program.LoadProgramFromYAML(*progPath, f)
	if err != nil {
		log.Fatalf("Failed to load program from %s: %v", *progPath, err)
	}

	p.Commit()

	report := verify.GenerateReport(p)
	report.WriteReport(os.Stdout)

	if *out != "" {
		if err := report.SaveReportToFile(*out); err != nil {
			log.Fatal(err)
		}

		fmt.Printf("\nReport saved to %s\n", *out)
	}

	if !report.OK() {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
