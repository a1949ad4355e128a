package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tupyy/platform-verifier/internal/artifacts"
	"github.com/tupyy/platform-verifier/internal/config"
)

// The run command is short-lived, so its in-process cleanup timers never
// fire; the manifests it leaves in the artifact directory are reclaimed
// here. gc is meant to run periodically (cron or a post-verification CI
// step), ack releases a retained failed run once an operator is done with
// it.

func newGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Reclaim artifacts of past runs whose ttl has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := buildArtifactManager(cmd)
			if err != nil {
				return err
			}
			swept, err := manager.Sweep()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d run(s)\n", swept)
			return nil
		},
	}
}

func newAckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <run_id>",
		Short: "Release the retained artifacts of a failed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := buildArtifactManager(cmd)
			if err != nil {
				return err
			}
			if err := manager.AcknowledgeRun(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "artifacts of run %s released\n", args[0])
			return nil
		},
	}
}

func buildArtifactManager(cmd *cobra.Command) (*artifacts.Manager, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := buildLogger(cfg); err != nil {
		return nil, err
	}
	return artifacts.NewManager(cfg.Artifacts)
}
