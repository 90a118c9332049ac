package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/conflictmapper/pkg/app"
	"github.com/platinummonkey/conflictmapper/pkg/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", app.DiagnosticCode(err), err)
		os.Exit(1)
	}
}
