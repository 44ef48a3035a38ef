// Command kiln runs, validates and tests KILN applications on the headless
// platform.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kiln/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
