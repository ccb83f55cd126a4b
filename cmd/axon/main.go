package main

import (
	"os"

	"github.com/axonmem/axon/cmd/axon/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
