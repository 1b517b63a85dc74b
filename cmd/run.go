package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/model"
)

var (
	runPromptID string
	runProvider string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single tracked prompt against one provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		promptID, err := uuid.Parse(runPromptID)
		if err != nil {
			return eris.Wrap(err, "parse prompt ID")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		exec, err := env.Pipeline.Run(ctx, promptID, runProvider)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		if exec.Status == model.StatusError {
			zap.L().Warn("run finished with provider error",
				zap.String("provider", exec.Provider),
				zap.Stringp("error", exec.ErrorMessage),
			)
		} else {
			zap.L().Info("run complete",
				zap.String("provider", exec.Provider),
				zap.String("model", exec.Model),
				zap.Bool("brand_present", exec.BrandPresent),
				zap.Int("competitors", exec.CompetitorCount),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exec)
	},
}

func init() {
	runCmd.Flags().StringVar(&runPromptID, "prompt", "", "tracked prompt ID (required)")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "provider name: openai, perplexity, gemini, anthropic (required)")
	_ = runCmd.MarkFlagRequired("prompt")
	_ = runCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(runCmd)
}
