package main

import (
	"os"

	"parley/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
