// Command pmgrid renders and edits a reservation calendar grid.
package main

import (
	"os"

	"github.com/bagoessprasetyo/property-management-sub000/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(cli.Report(root, err))
	}
}
