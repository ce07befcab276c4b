package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/coaching-engine/internal/model"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Record and inspect real-world pattern outcomes",
}

var (
	trackGoalID       int64
	trackCompleted    bool
	trackDays         int
	trackSatisfaction int
	trackImpact       string
	trackNotes        string
	trackWorked       string
	trackDidnt        string
)

var trackRecordCmd = &cobra.Command{
	Use:   "record <pattern-id> <contractor-id>",
	Short: "Append one outcome record for a pattern",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patternID, err := parseID(args[0], "pattern-id")
		if err != nil {
			return err
		}
		contractorID, err := parseID(args[1], "contractor-id")
		if err != nil {
			return err
		}

		rec := &model.PatternSuccessTracking{
			PatternID:     patternID,
			ContractorID:  contractorID,
			GoalCompleted: trackCompleted,
			RevenueImpact: model.RevenueImpact(trackImpact),
			OutcomeNotes:  trackNotes,
			WhatWorked:    trackWorked,
			WhatDidnt:     trackDidnt,
		}
		if trackGoalID > 0 {
			rec.GoalID = &trackGoalID
		}
		if trackDays > 0 {
			rec.TimeToCompletionDays = &trackDays
		}
		if trackSatisfaction != 0 {
			rec.ContractorSatisfaction = &trackSatisfaction
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		stored, err := env.Tracker.TrackSuccess(cmd.Context(), rec)
		if err != nil {
			return err
		}
		return printJSON(stored)
	},
}

var trackStatsCmd = &cobra.Command{
	Use:   "stats <pattern-id>",
	Short: "Aggregate tracked outcomes for one pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patternID, err := parseID(args[0], "pattern-id")
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Tracker.StatsFor(cmd.Context(), patternID)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var trackUnderperformingCmd = &cobra.Command{
	Use:   "underperforming",
	Short: "List patterns whose tracked outcomes undercut their confidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		flagged, err := env.Tracker.IdentifyUnderperforming(cmd.Context())
		if err != nil {
			return err
		}
		if flagged == nil {
			flagged = []model.Pattern{}
		}
		return printJSON(flagged)
	},
}

func init() {
	trackRecordCmd.Flags().Int64Var(&trackGoalID, "goal-id", 0, "goal the outcome belongs to")
	trackRecordCmd.Flags().BoolVar(&trackCompleted, "completed", false, "the goal was completed")
	trackRecordCmd.Flags().IntVar(&trackDays, "days", 0, "days to completion")
	trackRecordCmd.Flags().IntVar(&trackSatisfaction, "satisfaction", 0, "contractor satisfaction 1-5")
	trackRecordCmd.Flags().StringVar(&trackImpact, "impact", string(model.RevenueImpactTooEarly), "revenue impact: positive|neutral|negative|too_early")
	trackRecordCmd.Flags().StringVar(&trackNotes, "notes", "", "outcome notes")
	trackRecordCmd.Flags().StringVar(&trackWorked, "worked", "", "what worked")
	trackRecordCmd.Flags().StringVar(&trackDidnt, "didnt", "", "what didn't work")

	trackCmd.AddCommand(trackRecordCmd, trackStatsCmd, trackUnderperformingCmd)
	rootCmd.AddCommand(trackCmd)
}
