package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "verifier",
		Short:         "Post-deployment platform verification engine",
		Long:          "verifier checks that a rolled-out platform is actually serving correctly end-to-end: per-service health, dependency-ordered phases, and authenticated requests through the gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// accept underscores in flag names so they match the config file keys
	root.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.PersistentFlags().StringP("config", "c", "", "path to the engine configuration file")

	root.AddCommand(newRunCommand())
	root.AddCommand(newPlanCommand())
	root.AddCommand(newGCCommand())
	root.AddCommand(newAckCommand())
	root.AddCommand(newVersionCommand())
	return root
}
