// Package main provides the entry point for the sheetvoice CLI.
package main

import (
	"os"

	"github.com/raphaelgruber/sheetvoice/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
