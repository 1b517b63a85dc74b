package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brandlens/visibility/internal/model"
	"github.com/brandlens/visibility/internal/pipeline"
)

var (
	batchOrgID       string
	batchProviders   []string
	batchConcurrency int
	batchNoMerge     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run all active prompts for an organization across providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orgID, err := uuid.Parse(batchOrgID)
		if err != nil {
			return eris.Wrap(err, "parse org ID")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		providers := batchProviders
		if len(providers) == 0 {
			providers = env.Registry.Names()
		}
		if len(providers) == 0 {
			return eris.New("no providers configured")
		}

		prompts, err := env.Store.ListPrompts(ctx, orgID, true)
		if err != nil {
			return eris.Wrap(err, "list active prompts")
		}
		if len(prompts) == 0 {
			zap.L().Info("no active prompts for organization", zap.String("org_id", orgID.String()))
			return nil
		}

		if err := processBatch(ctx, env.Pipeline, prompts, providers, batchConcurrency); err != nil {
			return err
		}

		if batchNoMerge {
			return nil
		}
		changes, err := env.Pipeline.Merge(ctx, orgID)
		if err != nil {
			return eris.Wrap(err, "catalog merge")
		}
		zap.L().Info("catalog merged",
			zap.String("org_id", orgID.String()),
			zap.Int("upserts", len(changes.Upserts)),
			zap.Int("deletes", len(changes.DeleteIDs)),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchOrgID, "org", "", "organization ID (required)")
	batchCmd.Flags().StringSliceVar(&batchProviders, "provider", nil, "providers to run (default: all configured)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "max concurrent provider calls")
	batchCmd.Flags().BoolVar(&batchNoMerge, "no-merge", false, "skip the catalog merge after the batch")
	_ = batchCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(batchCmd)
}

// processBatch runs every active prompt against every provider concurrently.
// Individual provider failures are recorded as error executions by the
// pipeline and never abort the batch.
func processBatch(ctx context.Context, p *pipeline.Pipeline, prompts []model.TrackedPrompt, providers []string, concurrency int) error {
	zap.L().Info("processing batch",
		zap.Int("prompts", len(prompts)),
		zap.Int("providers", len(providers)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, prompt := range prompts {
		for _, providerName := range providers {
			g.Go(func() error {
				log := zap.L().With(
					zap.String("prompt_id", prompt.ID.String()),
					zap.String("provider", providerName),
				)

				exec, err := p.RunPrompt(gctx, prompt, providerName)
				if err != nil {
					failed.Add(1)
					log.Error("run failed", zap.Error(err))
					return nil // don't abort batch on individual failure
				}
				if exec.Status == model.StatusError {
					failed.Add(1)
					log.Warn("provider errored", zap.Stringp("error", exec.ErrorMessage))
					return nil
				}

				succeeded.Add(1)
				log.Info("run complete",
					zap.Bool("brand_present", exec.BrandPresent),
					zap.Int("competitors", exec.CompetitorCount),
				)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
