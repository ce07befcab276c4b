package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/coaching-engine/internal/model"
)

func parseID(arg, name string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, eris.Errorf("%s must be an integer id, got %q", name, arg)
	}
	return id, nil
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score contractors against the pattern library",
}

var matchFindCmd = &cobra.Command{
	Use:   "find <contractor-id>",
	Short: "Rank the library's patterns for one contractor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contractorID, err := parseID(args[0], "contractor-id")
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		matches, err := env.Matcher.FindMatchingPatterns(cmd.Context(), contractorID)
		if err != nil {
			return err
		}
		return printJSON(matches)
	},
}

var matchApplyCmd = &cobra.Command{
	Use:   "apply <contractor-id> <pattern-id>",
	Short: "Associate a pattern with a contractor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		contractorID, err := parseID(args[0], "contractor-id")
		if err != nil {
			return err
		}
		patternID, err := parseID(args[1], "pattern-id")
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		match, err := env.Matcher.ApplyToContractor(cmd.Context(), contractorID, patternID)
		if err != nil {
			return err
		}
		return printJSON(match)
	},
}

var matchResultCmd = &cobra.Command{
	Use:   "result <match-id> <pending|in_progress|successful|unsuccessful>",
	Short: "Record how a matched pattern worked out",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		matchID, err := parseID(args[0], "match-id")
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Matcher.UpdateMatchResult(cmd.Context(), matchID, model.PatternResult(args[1]))
	},
}

func init() {
	matchCmd.AddCommand(matchFindCmd, matchApplyCmd, matchResultCmd)
	rootCmd.AddCommand(matchCmd)
}
