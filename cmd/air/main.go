// Command air runs AIR interpreter turns from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/fluencelabs/aquavm-sub001/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
