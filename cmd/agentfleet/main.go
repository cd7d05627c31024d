// Package main is the entry point for the agentfleet orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/kandev/agentfleet/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
