// Package main is the entry point for the chanarr application.
package main

import (
	"os"

	"github.com/chanarr/chanarr/cmd/chanarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
