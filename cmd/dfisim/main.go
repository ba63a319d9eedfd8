// Package main provides the entry point for DFISim.
// DFISim is a cycle-accurate DRAM PHY timing simulation harness.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/sarchlab/dfisim/check"
	"github.com/sarchlab/dfisim/device"
	"github.com/sarchlab/dfisim/harness"
)

var (
	sysClkFreq     = flag.Int64("sys-clk-freq", 100_000_000, "System clock frequency in Hz")
	wckCkRatio     = flag.Int("wck-ck-ratio", 2, "WCK:CK ratio (2 or 4)")
	converterRatio = flag.Int("dfi-converter-ratio", 1, "Conversion ratio between sys clock and PHY CK")
	nPhases        = flag.Int("nphases", 1, "DFI phases per controller cycle")
	cycles         = flag.Uint64("cycles", 100_000, "PHY cycle budget")
	timingsPath    = flag.String("timings", "", "Path to timing override JSON file")
	fineRefresh    = flag.Bool("fine-refresh", false, "Check the fine-granularity refresh interval")
	noMaskedWrite  = flag.Bool("no-masked-write", false, "Use plain WRITE instead of MASKED-WRITE")
	checksAfter    = flag.Bool("checks-after-init", false, "Suppress violation reports until init completes")
	violatePeriod  = flag.Int64("violate-every", 0, "Deliberately violate tRC every n bursts (0 disables)")
	resetCount     = flag.Int("serdes-reset-cnt", 0, "PHY cycles to hold the wrapped engine in reset")
	verbose        = flag.Bool("v", false, "Verbose output (log every accepted command)")
)

func main() {
	flag.Parse()

	builder := harness.MakeBuilder().
		WithSysClkFreq(*sysClkFreq).
		WithWCKCKRatio(*wckCkRatio).
		WithConverterRatio(*converterRatio).
		WithNPhases(*nPhases).
		WithCycleBudget(*cycles).
		WithMaskedWrite(!*noMaskedWrite).
		WithSerdesResetCount(*resetCount).
		WithViolationPeriod(*violatePeriod).
		WithLogger(log.New(os.Stderr, "", log.LstdFlags))

	if *fineRefresh {
		builder = builder.WithRefreshMode(check.RefreshFine)
	}
	if *checksAfter {
		builder = builder.WithChecksAfterInit()
	}
	if *verbose {
		builder = builder.WithVerbose()
	}
	if *timingsPath != "" {
		config, err := device.LoadTimingsConfig(*timingsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timings: %v\n", err)
			os.Exit(1)
		}
		builder = builder.WithTimingsConfig(config)
	}

	h, err := builder.Build("DFISim")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building harness: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		printClockPlan(h)
	}

	report, err := h.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running simulation: %v\n", err)
		os.Exit(1)
	}

	printReport(report)

	if report.ViolationsReported > 0 {
		os.Exit(2)
	}
}

// printClockPlan dumps the derived clock domains.
func printClockPlan(h *harness.Harness) {
	plan := h.Plan()
	fmt.Printf("Clock plan (base %.0f Hz):\n", float64(plan.BaseFreq()))
	for _, spec := range plan.Domains() {
		fmt.Printf("  %-12s %12.0f Hz  phase %d\n",
			spec.Name, float64(spec.Freq), spec.PhaseDeg)
	}
	fmt.Printf("\n")
}

// printReport prints the run summary.
func printReport(report harness.Report) {
	fmt.Printf("\n")
	fmt.Printf("Cycles simulated:     %d\n", report.Cycles)
	fmt.Printf("Commands checked:     %d\n", report.Commands)
	fmt.Printf("Violations detected:  %d\n", report.ViolationsDetected)
	fmt.Printf("Violations reported:  %d\n", report.ViolationsReported)

	if len(report.ByConstraint) == 0 {
		return
	}

	names := make([]string, 0, len(report.ByConstraint))
	for name := range report.ByConstraint {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\nBy constraint:\n")
	for _, name := range names {
		fmt.Printf("  %-10s %d\n", name, report.ByConstraint[name])
	}
}
