package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tupyy/platform-verifier/internal/config"
	"github.com/tupyy/platform-verifier/internal/plan"
)

// newPlanCommand validates the declarations and prints the phase layout
// without running anything. Useful in CI to catch cycles and bad targets
// before a deployment takes place.
func newPlanCommand() *cobra.Command {
	var declarationsPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate declarations and print the phased execution plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := buildLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			checks, err := plan.Load(declarationsPath, cfg.Run)
			if err != nil {
				return err
			}
			testPlan, err := plan.Build(checks, cfg.Run.StrictGatewayOrdering)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d phase(s), %d probe(s)\n", len(testPlan.Phases), testPlan.ProbeCount())
			for i, phase := range testPlan.Phases {
				names := make([]string, 0, len(phase))
				for _, check := range phase {
					suffix := ""
					if check.Optional {
						suffix = " (optional)"
					}
					names = append(names, fmt.Sprintf("%s[%s]%s", check.Name, check.Kind, suffix))
				}
				fmt.Fprintf(out, "  phase %d: %s\n", i, strings.Join(names, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&declarationsPath, "declarations", "d", "checks.yaml", "path to the check declarations file")
	return cmd
}
