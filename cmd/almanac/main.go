// Package main is the entry point for the almanac CLI.
package main

import (
	"os"

	"moalmanac-api/internal/cli"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := cli.Execute(Version, Commit); err != nil {
		os.Exit(1)
	}
}
