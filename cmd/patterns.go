package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/coaching-engine/internal/analyzer"
	"github.com/sells-group/coaching-engine/internal/config"
	"github.com/sells-group/coaching-engine/internal/model"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Mine and maintain the pattern library",
}

var transitionsFile string

var patternsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Mine patterns for every configured tier transition",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		a := env.Analyzer
		if transitionsFile != "" {
			transitions, err := config.LoadTransitionsFile(transitionsFile)
			if err != nil {
				return err
			}
			a = analyzer.New(env.Store, transitions, cfg.Engine.MinCohortSize)
		}

		summary, err := a.GenerateAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored pattern library",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		patterns, err := env.Store.ListPatterns(cmd.Context())
		if err != nil {
			return err
		}
		if patterns == nil {
			patterns = []model.Pattern{}
		}
		return printJSON(patterns)
	},
}

var patternsUpdateLibraryCmd = &cobra.Command{
	Use:   "update-library",
	Short: "Recalculate confidence from tracked outcomes and flag underperformers",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Tracker.UpdateLibrary(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	patternsGenerateCmd.Flags().StringVar(&transitionsFile, "transitions", "", "YAML file of {from, to} tier transitions (default from config)")
	patternsCmd.AddCommand(patternsGenerateCmd, patternsListCmd, patternsUpdateLibraryCmd)
	rootCmd.AddCommand(patternsCmd)
}
