package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/coaching-engine/internal/model"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Aggregate partner, timeline and content recommendations",
}

var recommendPartnersCmd = &cobra.Command{
	Use:   "partners <contractor-id>",
	Short: "Rank partners across the contractor's matched patterns",
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

		recs, err := env.Partners.Aggregate(cmd.Context(), contractorID)
		if err != nil {
			return err
		}
		return printJSON(recs)
	},
}

var timelineTier string

var recommendTimelineCmd = &cobra.Command{
	Use:   "timeline <contractor-id>",
	Short: "Predict the contractor's timeline to a target tier",
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

		if timelineTier != "" {
			pred, err := env.Timeline.PredictToTier(cmd.Context(), contractorID, model.Tier(timelineTier))
			if err != nil {
				return err
			}
			if pred == nil {
				return printJSON(map[string]string{"status": "insufficient_data"})
			}
			return printJSON(pred)
		}

		pred, err := env.Timeline.NextMilestoneTimeline(cmd.Context(), contractorID)
		if err != nil {
			return err
		}
		if pred == nil {
			return printJSON(map[string]string{"status": "insufficient_data"})
		}
		return printJSON(pred)
	},
}

var recommendContentCmd = &cobra.Command{
	Use:   "content <contractor-id>",
	Short: "Rank books, podcasts and events across matched patterns",
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

		recs, err := env.Content.Aggregate(cmd.Context(), contractorID)
		if err != nil {
			return err
		}
		return printJSON(recs)
	},
}

func init() {
	recommendTimelineCmd.Flags().StringVar(&timelineTier, "tier", "", "explicit target tier (default: next tier up)")

	recommendCmd.AddCommand(recommendPartnersCmd, recommendTimelineCmd, recommendContentCmd)
	rootCmd.AddCommand(recommendCmd)
}
