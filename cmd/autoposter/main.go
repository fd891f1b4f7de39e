package main

import (
	"os"

	"github.com/blackmichael/bsky-autoposter/cmd/autoposter/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
