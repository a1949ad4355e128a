package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tupyy/platform-verifier/internal/artifacts"
	"github.com/tupyy/platform-verifier/internal/config"
	"github.com/tupyy/platform-verifier/internal/credentials"
	"github.com/tupyy/platform-verifier/internal/plan"
	"github.com/tupyy/platform-verifier/internal/report"
	"github.com/tupyy/platform-verifier/internal/runner"
	verrors "github.com/tupyy/platform-verifier/pkg/errors"
)

func newRunCommand() *cobra.Command {
	var (
		declarationsPath string
		jsonPath         string
		xlsxPath         string
		retainOnFailure  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the verification plan and report the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("retain-on-failure") {
				cfg.Artifacts.RetainOnFailure = retainOnFailure
			}

			logger, err := buildLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			zap.S().Debugw("configuration loaded", "config", cfg.DebugMap())

			checks, err := plan.Load(declarationsPath, cfg.Run)
			if err != nil {
				return err
			}
			testPlan, err := plan.Build(checks, cfg.Run.StrictGatewayOrdering)
			if err != nil {
				return err
			}

			source, err := buildSource(cfg.Credentials)
			if err != nil {
				return err
			}
			resolver := credentials.NewResolver(source, cfg.Credentials, "anon_key", "service_key")

			manager, err := artifacts.NewManager(cfg.Artifacts)
			if err != nil {
				return err
			}
			defer manager.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, runErr := runner.New(cfg.Run, resolver).Run(ctx, testPlan)
			if runErr != nil && !verrors.IsRunCancelled(runErr) {
				return runErr
			}

			if jsonPath != "" {
				if err := report.WriteJSONFile(jsonPath, rep); err != nil {
					return err
				}
				if err := manager.Register(rep.RunID, artifacts.Artifact{
					Kind:     "report-json",
					Location: jsonPath,
				}, removeFileCleanup(jsonPath)); err != nil {
					return err
				}
			}
			if xlsxPath != "" {
				f, err := os.Create(xlsxPath)
				if err != nil {
					return fmt.Errorf("failed to create xlsx report %q: %w", xlsxPath, err)
				}
				if err := report.WriteXLSX(f, rep); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				if err := manager.Register(rep.RunID, artifacts.Artifact{
					Kind:     "report-xlsx",
					Location: xlsxPath,
				}, removeFileCleanup(xlsxPath)); err != nil {
					return err
				}
			}

			report.Summarize(cmd.OutOrStdout(), rep)
			manager.ScheduleCleanup(rep.RunID, report.ExitCode(rep) != report.ExitPassed)

			os.Exit(report.ExitCode(rep))
			return nil
		},
	}

	cmd.Flags().StringVarP(&declarationsPath, "declarations", "d", "checks.yaml", "path to the check declarations file")
	cmd.Flags().StringVar(&jsonPath, "json", "", "write the machine-readable report to this path")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "export the report as a spreadsheet to this path")
	cmd.Flags().BoolVar(&retainOnFailure, "retain-on-failure", false, "keep run artifacts until acknowledged when the run fails")
	return cmd
}

func buildSource(cfg config.Credentials) (credentials.Source, error) {
	switch cfg.Source {
	case "env":
		return credentials.NewEnvSource(""), nil
	case "dir":
		return credentials.NewDirSource(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("unknown credentials source %q", cfg.Source)
	}
}

func removeFileCleanup(path string) artifacts.CleanupFunc {
	return func(context.Context) error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
}
