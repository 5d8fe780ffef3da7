package dashscope

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/medqa-sft/internal/models"
)

// sequenceHandler serves the given output objects in order and repeats the
// last one once the sequence is exhausted.
func sequenceHandler(calls *int32, outputs ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(calls, 1))
		if n > len(outputs) {
			n = len(outputs)
		}
		fmt.Fprintf(w, `{"output":%s}`, outputs[n-1])
	}
}

func TestMonitor_StopsAtTerminalState(t *testing.T) {
	var calls int32
	c := newTestClient(t, sequenceHandler(&calls,
		`{"job_id":"ft-1","status":"PENDING"}`,
		`{"job_id":"ft-1","status":"RUNNING","trained_tokens":1000,"training_progress":50}`,
		`{"job_id":"ft-1","status":"SUCCEEDED","fine_tuned_model":"qwen2.5-7b-instruct-ft-xyz"}`,
	))

	var out bytes.Buffer
	job, err := c.Monitor(context.Background(), "ft-1", time.Millisecond, &out)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, "qwen2.5-7b-instruct-ft-xyz", job.FineTunedModel)

	text := out.String()
	assert.Contains(t, text, "状态: ⏳ 等待中")
	assert.Contains(t, text, "状态: 🏃 运行中")
	assert.Contains(t, text, "已训练 tokens: 1000")
	assert.Contains(t, text, "训练进度: 50%")
	assert.Contains(t, text, "任务已完成: ✅ 成功")
	assert.Contains(t, text, "微调后的模型 ID: qwen2.5-7b-instruct-ft-xyz")
}

func TestMonitor_FailedJob(t *testing.T) {
	var calls int32
	c := newTestClient(t, sequenceHandler(&calls,
		`{"job_id":"ft-1","status":"FAILED","error_message":"dataset too small"}`,
	))

	var out bytes.Buffer
	job, err := c.Monitor(context.Background(), "ft-1", time.Millisecond, &out)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, out.String(), "错误信息: dataset too small")
}

func TestMonitor_KeepsPollingAfterQueryFailure(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"output":{"job_id":"ft-1","status":"CANCELLED"}}`))
	})

	var out bytes.Buffer
	job, err := c.Monitor(context.Background(), "ft-1", time.Millisecond, &out)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, strings.Count(out.String(), "状态:"))
}

func TestMonitor_CancelStopsPollingOnly(t *testing.T) {
	var calls, cancels int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/cancel") {
			atomic.AddInt32(&cancels, 1)
		}
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"output":{"job_id":"ft-1","status":"RUNNING"}}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	var out bytes.Buffer
	job, err := c.Monitor(ctx, "ft-1", 10*time.Millisecond, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusRunning, job.Status)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
	assert.Equal(t, int32(0), atomic.LoadInt32(&cancels))
}

func TestWriteStatusLine(t *testing.T) {
	tokens := int64(12)
	job := &models.FineTuneJob{Status: models.JobStatusRunning, TrainedTokens: &tokens}

	var out bytes.Buffer
	WriteStatusLine(&out, job, time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, "[2024-10-01 08:30:00] 状态: 🏃 运行中\n   已训练 tokens: 12\n", out.String())
}
