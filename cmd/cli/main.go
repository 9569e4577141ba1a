// Package main is the entry point for shipctl.
// shipctl submits repositories to the shipyard tracking service and runs the
// analyzer and artifact generators locally.
package main

import (
	"os"

	"shipyard/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
