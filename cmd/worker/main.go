package main

import (
	"os"

	"parley/internal/cli"
)

// Worker process entrypoint, equivalent to "parley worker".
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Relay committed outbox events to the bus until interrupted.
func main() {
	os.Exit(cli.Execute(append([]string{"worker"}, os.Args[1:]...)))
}
