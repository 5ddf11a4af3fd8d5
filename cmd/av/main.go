package main

import (
	"os"

	"archvault/cmd/av/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
