// Package main provides the leapbench CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapbench/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
