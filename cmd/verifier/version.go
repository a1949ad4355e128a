package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set at build time via -ldflags "-X main.version=..."
var version = "v0.0.0-dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the verifier version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
