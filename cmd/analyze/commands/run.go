package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"property-analyzer/internal/bootstrap"
	"property-analyzer/internal/jobs"
	"property-analyzer/internal/report"
)

var (
	runQuery  string
	runLimit  int
	runOutput string
	runFormat string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one analysis to completion and write its report",
	RunE:  runAnalysis,
}

func init() {
	runCmd.Flags().StringVarP(&runQuery, "query", "q", "", "subdivision query (required)")
	runCmd.Flags().IntVarP(&runLimit, "limit", "l", 1, "number of documents to download (1-50)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "report path (default stdout)")
	runCmd.Flags().StringVar(&runFormat, "format", "md", "report format: md or html")
	_ = runCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(runCmd)
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	if runFormat != "md" && runFormat != "html" {
		return fmt.Errorf("unsupported format %q", runFormat)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local := cfg
	local.JobStore = "memory"
	local.JobQueue = "local"
	local.WorkerConcurrency = 1

	app, err := bootstrap.Build(ctx, local, bootstrap.RoleAPI, bootstrap.Overrides{})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	job, err := app.Jobs.Create(ctx, runQuery, runLimit)
	if err != nil {
		return err
	}
	out.Info("job %s queued", job.ID)

	bar := out.NewProgressBar(job.Message)
	job, err = waitForJob(ctx, app.Jobs, job.ID, func(j jobs.Job) {
		bar.Update(j.Progress, j.Message)
	})
	if err != nil {
		return err
	}
	if job.Status == jobs.StatusFailed {
		out.Error("%s", job.Message)
		return errors.New(job.Error)
	}
	bar.Finish()

	_, md, err := app.Jobs.Report(ctx, job.ID)
	if err != nil {
		return err
	}
	body := md
	if runFormat == "html" {
		if body, err = renderReportHTML(job.Query, md); err != nil {
			return err
		}
	}
	if runOutput == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), body)
		return err
	}
	if err := os.WriteFile(runOutput, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	out.Success("report written to %s", runOutput)
	return nil
}

// waitForJob polls until the job is terminal, reporting each change of
// progress or message.
func waitForJob(ctx context.Context, svc *jobs.Service, jobID string, onChange func(jobs.Job)) (jobs.Job, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last jobs.Job
	for {
		job, err := svc.Get(ctx, jobID)
		if err != nil {
			return jobs.Job{}, err
		}
		if job.Progress != last.Progress || job.Message != last.Message {
			onChange(job)
			last = job
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func renderReportHTML(query, md string) (string, error) {
	return report.RenderHTML("Property analysis: "+query, md)
}
