// Package main provides a banner entry point for ftlsim.
// ftlsim is a discrete-event simulator of an SSD's request lifecycle.
//
// For the full CLI, use: go run ./cmd/ftlsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("ftlsim - SSD request-lifecycle simulator")
	fmt.Println("")
	fmt.Println("Usage: ftlsim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to a simulation configuration JSON file")
	fmt.Println("  -trace     Path to a trace file (omit to generate a synthetic one)")
	fmt.Println("  -gen       Force synthetic trace generation")
	fmt.Println("  -v         Print a per-request latency breakdown")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/ftlsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/ftlsim' instead.")
	}
}
