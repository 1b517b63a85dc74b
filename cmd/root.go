package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "brandlens",
	Short: "Brand visibility tracking across LLM answers",
	Long:  "Runs tracked prompts against LLM providers, extracts brand mentions, scores your brand's visibility, and maintains a per-organization competitor catalog.",
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
