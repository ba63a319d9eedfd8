// Package main provides the entry point for DFISim.
// DFISim is a cycle-accurate DRAM PHY timing simulation harness built on
// Akita.
//
// For the full CLI, use: go run ./cmd/dfisim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("DFISim - DRAM PHY Timing Simulation Harness")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: dfisim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -sys-clk-freq         System clock frequency in Hz")
	fmt.Println("  -wck-ck-ratio         WCK:CK ratio (2 or 4)")
	fmt.Println("  -dfi-converter-ratio  Sys clock to PHY CK conversion ratio")
	fmt.Println("  -cycles               PHY cycle budget")
	fmt.Println("  -timings              Path to timing override JSON file")
	fmt.Println("  -v                    Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/dfisim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/dfisim' instead.")
	}
}
