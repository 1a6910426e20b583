// Package main is the entry point for the gtpstamp GTP-U latency stamper.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/gtpstamp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
