// Command devwatch rebuilds and restarts a server whenever its sources change.
package main

import (
	"os"

	"github.com/felixgeelhaar/devwatch/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args, os.Stdout, os.Stderr, cli.BuildService(os.Stdout)))
}
