package main

import (
	"os"

	"puppyspa/waitlist-service/cmd/waitlistctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
