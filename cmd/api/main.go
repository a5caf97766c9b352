package main

import (
	"os"

	"parley/internal/cli"
)

// API process entrypoint, equivalent to "parley serve".
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve the websocket gateway and read API, relay the outbox.
func main() {
	os.Exit(cli.Execute(append([]string{"serve"}, os.Args[1:]...)))
}
