// Package main is the entry point for the incident tracker.
package main

import (
	"os"

	"github.com/bissquit/incident-tracker/cmd/incident-tracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
