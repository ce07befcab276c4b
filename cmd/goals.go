package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/coaching-engine/internal/goals"
)

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Generate and operate on hidden goals and checklists",
}

var goalsGenerateCmd = &cobra.Command{
	Use:   "generate <contractor-id>",
	Short: "Generate goals and checklist items for a contractor",
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

		result, err := env.Goals.GenerateGoalsForContractor(cmd.Context(), contractorID)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var (
	triggerInConversation bool
	triggerPostEvent      bool
	triggerEventID        string
)

var goalsTriggersCmd = &cobra.Command{
	Use:   "triggers <contractor-id>",
	Short: "Evaluate which pending checklist items the given context triggers",
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

		triggered, err := env.Goals.EvaluateChecklistTriggers(cmd.Context(), contractorID, goals.TriggerContext{
			IsInConversation: triggerInConversation,
			IsPostEvent:      triggerPostEvent,
			EventID:          triggerEventID,
		})
		if err != nil {
			return err
		}
		return printJSON(triggered)
	},
}

var goalsStartCmd = &cobra.Command{
	Use:   "start <item-id>",
	Short: "Mark a checklist item in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := parseID(args[0], "item-id")
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		moved, err := env.Goals.TrackActionExecution(cmd.Context(), itemID, nil)
		if err != nil {
			return err
		}
		return printJSON(map[string]bool{"started": moved})
	},
}

var completionNotes string

var goalsCompleteCmd = &cobra.Command{
	Use:   "complete <item-id>",
	Short: "Complete a checklist item and recompute the goal's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := parseID(args[0], "item-id")
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		progress, goalCompleted, err := env.Goals.CompleteActionAndUpdateProgress(cmd.Context(), itemID, completionNotes, nil)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"progress":       progress,
			"goal_completed": goalCompleted,
		})
	},
}

func init() {
	goalsTriggersCmd.Flags().BoolVar(&triggerInConversation, "conversation", false, "evaluate as if inside a coaching conversation")
	goalsTriggersCmd.Flags().BoolVar(&triggerPostEvent, "post-event", false, "evaluate as if just after an event")
	goalsTriggersCmd.Flags().StringVar(&triggerEventID, "event-id", "", "event id for post-event context")
	goalsCompleteCmd.Flags().StringVar(&completionNotes, "notes", "", "completion notes")

	goalsCmd.AddCommand(goalsGenerateCmd, goalsTriggersCmd, goalsStartCmd, goalsCompleteCmd)
	rootCmd.AddCommand(goalsCmd)
}
