package dashscope

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/medqa-sft/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// Monitor polls a job until it reaches a terminal state and returns the final
// job. Cancelling ctx only stops the polling; the remote job is untouched and
// the last observed job is returned together with ctx.Err(). A failed status
// query is logged and polling continues.
func (c *Client) Monitor(ctx context.Context, jobID string, interval time.Duration, out io.Writer) (*models.FineTuneJob, error) {
	var last *models.FineTuneJob
	for {
		job, err := c.GetJobStatus(ctx, jobID)
		switch {
		case err != nil && ctx.Err() == nil:
			slog.Warn("job status query failed", "job_id", jobID, "error", err)
		case err == nil:
			last = job
			WriteStatusLine(out, job, time.Now())
			if job.Status.Terminal() {
				WriteSummary(out, job)
				return job, nil
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}

func WriteStatusLine(w io.Writer, job *models.FineTuneJob, now time.Time) {
	fmt.Fprintf(w, "[%s] 状态: %s\n", now.Format(timeLayout), job.Status.Label())
	if job.TrainedTokens != nil {
		fmt.Fprintf(w, "   已训练 tokens: %d\n", *job.TrainedTokens)
	}
	if job.TrainingProgress != nil {
		fmt.Fprintf(w, "   训练进度: %g%%\n", *job.TrainingProgress)
	}
}

func WriteSummary(w io.Writer, job *models.FineTuneJob) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "🎯 任务已完成: %s\n", job.Status.Label())

	switch job.Status {
	case models.JobStatusSucceeded:
		fmt.Fprintf(w, "   微调后的模型 ID: %s\n", job.FineTunedModel)
	case models.JobStatusFailed:
		msg := job.ErrorMessage
		if msg == "" {
			msg = "未知错误"
		}
		fmt.Fprintf(w, "   错误信息: %s\n", msg)
	}
	fmt.Fprintln(w, rule)
}
