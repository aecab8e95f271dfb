// Command ljx-smoketest drives the block cache end to end: either
// replaying a fixed YAML scenario (SPEC_FULL.md §4.6) or running a
// built-in concurrent fuzz drive, then printing a hit-rate and
// page-reuse-detector summary per backend.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	_ "go.uber.org/automaxprocs"
)

type globalOptions struct {
	Verbose bool `help:"Enable debug-level logging." short:"v"`
}

type runCmd struct {
	Scenario string `arg:"" optional:"" help:"Path to a YAML scenario file. If omitted, runs a built-in fuzz drive."`

	Backends       int `help:"Number of synthetic backends for the fuzz drive." default:"8"`
	OpsPerBackend  int `help:"Number of operations per backend for the fuzz drive." default:"200"`
	CacheSizeLimit int `help:"Override the cache's entry-count limit." default:"0"`
}

func (r *runCmd) Run(g *globalOptions) error {
	logger := log.NewLogfmtLogger(os.Stderr)
	if g.Verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	var (
		results []summary
		err     error
	)
	if r.Scenario != "" {
		s, loadErr := loadScenario(r.Scenario)
		if loadErr != nil {
			return errors.Wrap(loadErr, "loading scenario")
		}
		if r.CacheSizeLimit > 0 {
			s.CacheSizeLimit = r.CacheSizeLimit
		}
		results, err = runScenario(logger, s)
	} else {
		results, err = fuzzDrive(logger, r.Backends, r.OpsPerBackend, r.CacheSizeLimit)
	}
	if err != nil {
		return errors.Wrap(err, "running smoke test")
	}

	printSummary(results)

	for _, s := range results {
		if s.mismatches > 0 {
			return fmt.Errorf("%d mismatches in backend %s", s.mismatches, s.backend)
		}
	}
	return nil
}

func printSummary(results []summary) {
	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"backend", "ops", "hits", "misses", "mismatches", "unrecognized", "same", "changed"})
	for _, s := range results {
		w.Append([]string{
			s.backend,
			fmt.Sprint(s.ops),
			fmt.Sprint(s.hits),
			fmt.Sprint(s.misses),
			fmt.Sprint(s.mismatches),
			fmt.Sprint(s.unrecognized),
			fmt.Sprint(s.samePages),
			fmt.Sprint(s.changedPages),
		})
	}
	w.Render()
}

var cli struct {
	globalOptions
	Run runCmd `cmd:"" default:"1" help:"Run a smoke-test scenario or fuzz drive."`
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("ljx-smoketest"),
		kong.Description("Drives the block cache with synthetic backends and reports hit rate and detector counters."))
	err := ctx.Run(&cli.globalOptions)
	ctx.FatalIfErrorf(err)
}
