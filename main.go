// Package main provides the entry point for cachesim.
// Cachesim is a cycle-stepped simulator of a pipelined core's cache
// subsystem: L1 instruction and data caches with a store buffer.
//
// For the full CLI, use: go run ./cmd/cachesim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("cachesim - cache subsystem simulator")
	fmt.Println("")
	fmt.Println("Usage: cachesim [options] <trace-file>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to subsystem configuration JSON file")
	fmt.Println("  -fast        Use the functional reference model (no timing)")
	fmt.Println("  -stats-json  Emit statistics as JSON")
	fmt.Println("  -v           Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/cachesim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/cachesim' instead.")
	}
}
