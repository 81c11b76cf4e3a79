package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/monitoring"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/pipeline"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect analysis jobs",
	Long:  "Commands for listing, viewing, summarizing, and exporting analysis jobs.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := jobFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		jobs, err := st.ListJobs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show the status payload of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		view, err := pipeline.NewStatusReader(st, cfg.Pipeline.GraceWindow()).GetStatus(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		format, _ := cmd.Flags().GetString("output")
		return writeDocument(os.Stdout, format, view)
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}

		stuckAfter := time.Duration(cfg.Monitoring.StuckAfterSecs) * time.Second
		snap, err := monitoring.NewCollector(st, stuckAfter).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}

		formatJobStats(os.Stdout, snap)

		if alerts, _ := cmd.Flags().GetBool("alerts"); alerts {
			formatAlerts(os.Stdout, monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap))
		}
		return nil
	},
}

// -- jobs export --

var jobsExportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export jobs and their scorecards to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := jobFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		jobs, err := st.ListJobs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs export")
		}

		if err := exportJobsXLSX(args[0], jobs); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d jobs to %s\n", len(jobs), args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{jobsListCmd, jobsExportCmd} {
		c.Flags().String("status", "", "filter by job status (pending, processing, completed, failed)")
		c.Flags().String("user", "", "filter by owner user id")
		c.Flags().Duration("since", 0, "only jobs created within this window (e.g. 24h)")
		c.Flags().Int("limit", 50, "max number of jobs")
	}

	jobsShowCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")
	jobsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")
	jobsStatsCmd.Flags().Bool("alerts", false, "also evaluate the monitoring alert rules (nothing is sent)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	jobsCmd.AddCommand(jobsExportCmd)
	rootCmd.AddCommand(jobsCmd)
}

func jobFilterFromFlags(cmd *cobra.Command) (store.JobFilter, error) {
	status, _ := cmd.Flags().GetString("status")
	userID, _ := cmd.Flags().GetString("user")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := store.JobFilter{
		Status: model.JobStatus(status),
		UserID: userID,
		Limit:  limit,
	}
	if status != "" && !filter.Status.Valid() {
		return filter, eris.Errorf("unknown job status %q", status)
	}
	if since > 0 {
		filter.CreatedAfter = time.Now().Add(-since)
	}
	return filter, nil
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, jobs []model.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSELLER\tTARGET\tSTATUS\tPROGRESS\tSCORE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t------\t--------\t-----\t-------")

	for _, j := range jobs {
		score := ""
		if j.Status == model.JobStatusCompleted && j.AnalysisData != nil {
			score = strconv.FormatFloat(j.AnalysisData.Scorecard.OverallScore, 'f', 0, 64)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\n",
			j.ID,
			shorten(j.Seller, 24),
			shorten(j.Target, 24),
			j.Status,
			j.Progress,
			score,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatJobStats writes aggregate stats to w.
func formatJobStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total jobs:\t%d\n", s.JobsTotal)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", s.JobsCompleted)
	_, _ = fmt.Fprintf(w, "  Without research:\t%d\n", s.DegradedResearch)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.JobsFailed)
	_, _ = fmt.Fprintf(w, "In flight:\t%d\n", s.JobsInFlight)
	_, _ = fmt.Fprintf(w, "  Stuck:\t%d\n", s.JobsStuck)
	if s.JobsCompleted+s.JobsFailed > 0 {
		_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", s.FailRate*100)
	}
	if s.AvgOverallScore > 0 {
		_, _ = fmt.Fprintf(w, "Avg overall score:\t%.1f\n", s.AvgOverallScore)
	}
	_ = w.Flush()
}

// formatAlerts writes evaluated alerts to w.
func formatAlerts(out io.Writer, alerts []monitoring.Alert) {
	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nALERT\tSEVERITY\tMESSAGE")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.Type, a.Severity, a.Message)
	}
	_ = w.Flush()
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
