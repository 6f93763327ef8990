// Command macropulse refreshes the macro dataset and publishes it.
package main

import (
	"os"

	"github.com/macropulse/macropulse/cmd"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version + " (" + commit + ", " + date + ")")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
