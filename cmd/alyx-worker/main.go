// Command alyx-worker runs Go functions for a functions host.
//
// Function packages register themselves in the default catalog from their
// init funcs, so a worker binary is this command plus blank imports of the
// function packages it serves.
package main

import (
	"os"

	"github.com/watzon/alyx-worker/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
