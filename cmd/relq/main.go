// Command relq compiles LINQ-style query documents to SQLite SQL.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/relq/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relq:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
