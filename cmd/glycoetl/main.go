package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glucolab/pipeline/pkg/assemble"
	"github.com/glucolab/pipeline/pkg/cohort"
	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/features"
	"github.com/glucolab/pipeline/pkg/normalize"
	"github.com/glucolab/pipeline/pkg/pipeline"
	"github.com/glucolab/pipeline/pkg/report"
	"github.com/glucolab/pipeline/pkg/rules"
)

func main() {
	logger.Init()

	rootCmd := &cobra.Command{
		Use:   "glycoetl",
		Short: "Clinical ETL for per-day glycemia risk modeling tables",
	}

	rootCmd.AddCommand(
		runCmd(),
		normalizeCmd(),
		filterCmd(),
		extractCmd(),
		assembleCmd(),
		checkCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRules resolves the rule set from the configured path. An unreadable
// file degrades to the built-in defaults with a warning; a file that parses
// wrong is fatal, since half-applied rules would silently skew the study.
func loadRules(cfg *config.Config) (rules.Ruleset, error) {
	rs, err := rules.Load(cfg.RulesPath)
	if err != nil && len(rs.Normalizer.Cohorts) > 0 {
		logger.Log.WithError(err).Warn("rule file unreadable, using built-in defaults")
		return rs, nil
	}
	return rs, err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute every pipeline stage in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			rs, err := loadRules(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			_, err = pipeline.NewRunner(cfg, rs).Run(ctx)
			return err
		},
	}
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Merge raw exports into canonical per-cohort tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			rs, err := loadRules(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			_, err = normalize.New(cfg, rs.Normalizer).Run(ctx)
			return err
		},
	}
}

func filterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filter",
		Short: "Apply study cohort exclusions",
		RunE: perCohortCmd(func(cfg *config.Config, rs rules.Ruleset, c string) error {
			_, err := cohort.New(cfg, rs.Exclusion).Run(c)
			return err
		}),
	}
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run the rule-based feature extraction passes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "medications",
			Short: "Classify glucose-lowering medication orders",
			RunE: perCohortCmd(func(cfg *config.Config, rs rules.Ruleset, c string) error {
				_, err := features.NewMedications(cfg, rs.Medications).Run(c)
				return err
			}),
		},
		&cobra.Command{
			Use:   "comorbidities",
			Short: "Derive comorbidity flags from diagnosis text",
			RunE: perCohortCmd(func(cfg *config.Config, rs rules.Ruleset, c string) error {
				_, err := features.NewComorbidities(cfg, rs.Comorbidities).Run(c)
				return err
			}),
		},
		&cobra.Command{
			Use:   "surgery",
			Short: "Extract surgery events and dates",
			RunE: perCohortCmd(func(cfg *config.Config, rs rules.Ruleset, c string) error {
				_, err := features.NewSurgery(cfg, rs.Orders).Run(c)
				return err
			}),
		},
		&cobra.Command{
			Use:   "nutrition",
			Short: "Extract fasting and nutrition windows",
			RunE: perCohortCmd(func(cfg *config.Config, rs rules.Ruleset, c string) error {
				_, err := features.NewFastingNutrition(cfg, rs.Orders).Run(c)
				return err
			}),
		},
	)
	return cmd
}

func assembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assemble",
		Short: "Build the combined per-day modeling tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			rs, err := loadRules(cfg)
			if err != nil {
				return err
			}
			_, err = assemble.New(cfg, assemble.Cohorts(rs.Normalizer)).Run()
			return err
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-columns",
		Short: "Compare table headers against the column convention document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			rs, err := loadRules(cfg)
			if err != nil {
				return err
			}
			_, err = report.New(cfg, assemble.Cohorts(rs.Normalizer)).Run()
			return err
		},
	}
}

func perCohortCmd(run func(cfg *config.Config, rs rules.Ruleset, cohort string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		rs, err := loadRules(cfg)
		if err != nil {
			return err
		}
		var firstErr error
		for _, c := range assemble.Cohorts(rs.Normalizer) {
			if err := run(cfg, rs, c); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}
