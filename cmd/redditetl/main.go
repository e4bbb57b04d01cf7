// Package main is the entry point for the redditetl CLI tool.
package main

import (
	"os"

	"github.com/harvx/reddit-etl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
