package models

import (
	"bytes"
	"encoding/json"
)

// QARecord is one line of the MedQA question files. Answer, AnswerIdx and the
// option values hold the text of whatever scalar the source carried.
type QARecord struct {
	Question  string            `json:"question"`
	Options   map[string]string `json:"options"`
	Answer    string            `json:"answer"`
	AnswerIdx string            `json:"answer_idx"`
	MetaInfo  json.RawMessage   `json:"meta_info,omitempty"`
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
	JobStatusUnknown   JobStatus = "UNKNOWN"
)

var jobStatusLabels = map[JobStatus]string{
	JobStatusPending:   "⏳ 等待中",
	JobStatusRunning:   "🏃 运行中",
	JobStatusSucceeded: "✅ 成功",
	JobStatusFailed:    "❌ 失败",
	JobStatusCancelled: "🚫 已取消",
}

// Label returns the operator-facing description of the status. Statuses the
// platform adds later are shown as-is.
func (s JobStatus) Label() string {
	if l, ok := jobStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

const (
	TrainingTypeSFT          = "sft"
	TrainingTypeEfficientSFT = "efficient_sft"
)

// Hyperparameters is the hyper_parameters object of a fine-tune request.
// The LoRA fields are nil unless the training type is efficient_sft.
type Hyperparameters struct {
	NEpochs      int     `json:"n_epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate string  `json:"learning_rate"`
	Split        float64 `json:"split"`
	WarmupRatio  float64 `json:"warmup_ratio"`
	EvalSteps    int     `json:"eval_steps"`
	MaxLength    int     `json:"max_length"`

	LoraRank      *int     `json:"lora_rank,omitempty"`
	LoraAlpha     *int     `json:"lora_alpha,omitempty"`
	LoraDropout   *float64 `json:"lora_dropout,omitempty"`
	TargetModules *string  `json:"target_modules,omitempty"`
}

// FineTuneJob is the output object of the fine-tunes endpoints. Raw keeps the
// payload exactly as the platform sent it.
type FineTuneJob struct {
	JobID            string         `json:"job_id"`
	Status           JobStatus      `json:"status"`
	Model            string         `json:"model,omitempty"`
	FineTunedModel   string         `json:"fine_tuned_model,omitempty"`
	TrainedTokens    *int64         `json:"trained_tokens,omitempty"`
	TrainingProgress *float64       `json:"training_progress,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Raw              map[string]any `json:"-"`
}

// PrettyJSON renders the raw payload indented. Non-ASCII and HTML-sensitive
// characters are left as-is.
func (j *FineTuneJob) PrettyJSON() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(j.Raw); err != nil {
		return "{}"
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
