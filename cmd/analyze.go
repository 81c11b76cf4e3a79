package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one deal analysis in the foreground",
	Long:  "Creates a job, runs research and generation under the configured budgets, and prints the final job record.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		seller, _ := cmd.Flags().GetString("seller")
		target, _ := cmd.Flags().GetString("target")
		userID, _ := cmd.Flags().GetString("user")
		format, _ := cmd.Flags().GetString("output")

		env, err := initEnv(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Scheduler.Run(ctx, seller, target, userID)
		if err != nil {
			return err
		}
		zap.L().Info("analysis finished",
			zap.String("job_id", out.JobID),
			zap.String("status", string(out.Status)),
		)

		return writeDocument(os.Stdout, format, analyzeResult(ctx, env, out))
	},
}

// analyzeResult prefers the stored record; the in-memory outcome is used
// when the store could not be read back.
func analyzeResult(ctx context.Context, env *appEnv, out pipeline.Outcome) any {
	if job, err := env.Store.GetJob(ctx, out.JobID); err == nil {
		return pipeline.NewJobView(job)
	}
	return out
}

func init() {
	analyzeCmd.Flags().String("seller", "", "seller company name")
	analyzeCmd.Flags().String("target", "", "target company name")
	analyzeCmd.Flags().String("user", "", "owner user id; history is only saved for identified users")
	analyzeCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")
	_ = analyzeCmd.MarkFlagRequired("seller")
	_ = analyzeCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(analyzeCmd)
}
