package main

import (
	"os"

	"coldtap/cmd/coldtap/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
