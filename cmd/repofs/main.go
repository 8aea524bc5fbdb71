package main

import (
	"os"

	"repofs/cmd/repofs/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
