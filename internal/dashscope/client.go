// Package dashscope is a thin client for the DashScope fine-tune REST API.
package dashscope

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/nikhilbhutani/medqa-sft/internal/models"
)

// ErrUnexpectedPayload is returned when a 200 response lacks the fields the
// client needs.
var ErrUnexpectedPayload = errors.New("unexpected response payload")

// APIError is a non-200 response from the platform.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL string
	APIKey  string
	Debug   bool
}

type Client struct {
	client *resty.Client
}

// NewClient builds a client with retries disabled; every failure surfaces to
// the caller on the first attempt.
func NewClient(cfg Config) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	if cfg.Debug {
		client.SetDebug(true)
	}

	return &Client{client: client}
}

// CreateJobRequest is the body of POST /fine-tunes.
type CreateJobRequest struct {
	Model             string                 `json:"model"`
	TrainingFileIDs   []string               `json:"training_file_ids"`
	ValidationFileIDs []string               `json:"validation_file_ids,omitempty"`
	HyperParameters   models.Hyperparameters `json:"hyper_parameters"`
	TrainingType      string                 `json:"training_type"`
}

// UploadFile uploads a dataset file for fine-tuning and returns its file id.
func (c *Client) UploadFile(ctx context.Context, path, description string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	resp, err := c.client.R().
		SetContext(ctx).
		SetMultipartField("files", filepath.Base(path), "application/json", f).
		SetMultipartFormData(map[string]string{
			"purpose":      "fine-tune",
			"descriptions": description,
		}).
		Post("/files")
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	if err := checkStatus("upload file", resp); err != nil {
		return "", err
	}

	id := gjson.GetBytes(resp.Body(), "data.uploaded_files.0.file_id")
	if id.String() == "" {
		return "", fmt.Errorf("upload file: %w: %s", ErrUnexpectedPayload, resp.String())
	}
	return id.String(), nil
}

// CreateJob starts a fine-tune job and returns the job as reported by the
// platform.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*models.FineTuneJob, error) {
	if len(req.TrainingFileIDs) == 0 {
		return nil, errors.New("create job: at least one training file id is required")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/fine-tunes")
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := checkStatus("create job", resp); err != nil {
		return nil, err
	}

	job, err := decodeJob("create job", resp.Body())
	if err != nil {
		return nil, err
	}
	if job.JobID == "" {
		return nil, fmt.Errorf("create job: %w: %s", ErrUnexpectedPayload, resp.String())
	}
	return job, nil
}

// GetJobStatus reads the current state of a job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*models.FineTuneJob, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("job_id", jobID).
		Get("/fine-tunes/{job_id}")
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	if err := checkStatus("get job status", resp); err != nil {
		return nil, err
	}
	return decodeJob("get job status", resp.Body())
}

// CancelJob asks the platform to stop a job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("job_id", jobID).
		Post("/fine-tunes/{job_id}/cancel")
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return checkStatus("cancel job", resp)
}

func checkStatus(op string, resp *resty.Response) error {
	if resp.StatusCode() != http.StatusOK {
		return &APIError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// decodeJob reads the output object leniently: absent fields stay zero and
// numeric fields may arrive as numbers or strings.
func decodeJob(op string, body []byte) (*models.FineTuneJob, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: %w: invalid JSON", op, ErrUnexpectedPayload)
	}
	out := gjson.GetBytes(body, "output")
	if !out.IsObject() {
		return nil, fmt.Errorf("%s: %w: missing output: %s", op, ErrUnexpectedPayload, body)
	}

	raw, _ := out.Value().(map[string]any)
	job := &models.FineTuneJob{
		JobID:          out.Get("job_id").String(),
		Status:         models.JobStatus(out.Get("status").String()),
		Model:          out.Get("model").String(),
		FineTunedModel: out.Get("fine_tuned_model").String(),
		ErrorMessage:   out.Get("error_message").String(),
		Raw:            raw,
	}
	if job.Status == "" {
		job.Status = models.JobStatusUnknown
	}
	if v := out.Get("trained_tokens"); v.Exists() && v.Type != gjson.Null {
		n := v.Int()
		job.TrainedTokens = &n
	}
	if v := out.Get("training_progress"); v.Exists() && v.Type != gjson.Null {
		p := v.Float()
		job.TrainingProgress = &p
	}
	return job, nil
}
