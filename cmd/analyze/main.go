package main

import (
	"os"

	"property-analyzer/cmd/analyze/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
