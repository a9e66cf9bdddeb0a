// Package main provides the entry point for O3Sim.
// O3Sim is a trace-driven out-of-order CPU performance model.
//
// For the full CLI, use: go run ./cmd/o3sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("O3Sim - Out-of-Order CPU Performance Model")
	fmt.Println("")
	fmt.Println("Usage: o3sim [options] <trace.json>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to scheduler configuration JSON file")
	fmt.Println("  -db        Record results to a SQLite database")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/o3sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/o3sim' instead.")
	}
}
