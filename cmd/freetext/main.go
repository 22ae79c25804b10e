// Package main provides the entry point for the freetext CLI.
package main

import (
	"os"

	"github.com/zooragi/openEQUELLA/cmd/freetext/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
