// Command usefinalize finalizes a patchable USE program and prints the final
// instruction words.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/unipatch/api"
	"github.com/sarchlab/unipatch/config"
	"github.com/sarchlab/unipatch/finalize"
)

var (
	variant  = flag.String("variant", "sgx543", "hardware variant")
	features = flag.String("features", "", "YAML feature file, overrides -variant")
	progPath = flag.String("program", "", "YAML program file")
	list     = flag.Bool("list", false, "print a listing instead of raw words")
	trace    = flag.Bool("trace", false, "log every finalizer decision")
)

func loadFeatures() (config.Features, error) {
	if *features != "" {
		return config.LoadFeaturesFromYAML(*features)
	}

	return config.Variant(*variant)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "usefinalize:", err)
	atexit.Exit(1)
}

func main() {
	flag.Parse()

	level := slog.LevelWarn
	if *trace {
		level = finalize.LevelTrace
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: level})))

	if *progPath == "" {
		fmt.Fprintln(os.Stderr, "usefinalize: -program is required")
		flag.Usage()
		atexit.Exit(2)
	}

	f, err := loadFeatures()
	if err != nil {
		fail(err)
	}

	driver := api.MakeDriverBuilder().
		WithFeatures(f).
		Build("Driver")

	if err := driver.LoadProgram(*progPath); err != nil {
		fail(err)
	}

	res, err := driver.Finalize()
	if err != nil {
		if res != nil {
			for _, issue := range res.Issues {
				fmt.Fprintf(os.Stderr, "[%s] %s@%d: %s\n",
					issue.Type, issue.Block, issue.Addr, issue.Message)
			}
		}

		fail(err)
	}

	if *list {
		if err := driver.WriteListing(os.Stdout); err != nil {
			fail(err)
		}

		atexit.Exit(0)
	}

	for _, w := range res.Words {
		fmt.Println(w)
	}

	atexit.Exit(0)
}
