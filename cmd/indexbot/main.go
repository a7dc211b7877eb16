// Package main provides the entry point for the indexbot CLI.
package main

import (
	"os"

	"github.com/aissist/indexbot/cmd/indexbot/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
