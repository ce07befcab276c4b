package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/coaching-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "coaching-engine",
	Short: "Pattern learning and recommendation engine for contractor coaching",
	Long:  "Mines growth patterns from contractor cohorts, matches contractors against them, generates hidden goals and checklists, and recalculates pattern confidence from tracked outcomes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
