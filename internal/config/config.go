package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/medqa-sft/internal/models"
)

const DefaultEnvFile = ".env"

// Keys written back to the env file as the pipeline progresses.
const (
	KeyTrainFileID      = "TRAIN_FILE_ID"
	KeyValidationFileID = "VALIDATION_FILE_ID"
	KeyJobID            = "FINE_TUNE_JOB_ID"
	KeyFineTunedModelID = "FINE_TUNED_MODEL_ID"
)

type Config struct {
	EnvFile   string
	DashScope DashScopeConfig
	FineTune  FineTuneConfig
	Paths     PathsConfig
	State     StateConfig
}

type DashScopeConfig struct {
	APIKey            string
	BaseURL           string
	CompatibleBaseURL string
}

type FineTuneConfig struct {
	BaseModel       string
	TrainingType    string // "sft" or "efficient_sft"
	NEpochs         int
	BatchSize       int
	LearningRate    string
	Split           float64
	WarmupRatio     float64
	EvalSteps       int
	MaxLength       int
	LoraRank        int
	LoraAlpha       int
	LoraDropout     float64
	TargetModules   string
	MonitorInterval time.Duration
}

type PathsConfig struct {
	QuestionsDir string
	DataDir      string
}

// StateConfig holds identifiers produced by earlier runs.
type StateConfig struct {
	TrainFileID      string
	ValidationFileID string
	JobID            string
	FineTunedModelID string
}

// Load reads envFile into the process environment, without overriding
// variables that are already set, and builds the configuration from it.
// A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var errs []error
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	floatVar := func(key string, fallback float64) float64 {
		v, err := getEnvFloat(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}

	cfg := &Config{
		EnvFile: envFile,
		DashScope: DashScopeConfig{
			APIKey:            getEnv("DASHSCOPE_API_KEY", ""),
			BaseURL:           getEnv("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"),
			CompatibleBaseURL: getEnv("DASHSCOPE_COMPATIBLE_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		},
		FineTune: FineTuneConfig{
			BaseModel:       getEnv("FINE_TUNE_BASE_MODEL", "qwen2.5-7b-instruct"),
			TrainingType:    getEnv("TRAINING_TYPE", models.TrainingTypeEfficientSFT),
			NEpochs:         intVar("N_EPOCHS", 3),
			BatchSize:       intVar("BATCH_SIZE", 16),
			LearningRate:    getEnv("LEARNING_RATE", "1e-4"),
			Split:           floatVar("SPLIT", 0.9),
			WarmupRatio:     floatVar("WARMUP_RATIO", 0.05),
			EvalSteps:       intVar("EVAL_STEPS", 50),
			MaxLength:       intVar("MAX_LENGTH", 2048),
			LoraRank:        intVar("LORA_RANK", 64),
			LoraAlpha:       intVar("LORA_ALPHA", 32),
			LoraDropout:     floatVar("LORA_DROPOUT", 0.1),
			TargetModules:   getEnv("TARGET_MODULES", "ALL"),
			MonitorInterval: time.Duration(intVar("MONITOR_INTERVAL", 30)) * time.Second,
		},
		Paths: PathsConfig{
			QuestionsDir: getEnv("QUESTIONS_DIR", "datasets/MedQA/questions"),
			DataDir:      getEnv("DATA_DIR", "datasets/MedQA_BaiLian"),
		},
		State: StateConfig{
			TrainFileID:      getEnv(KeyTrainFileID, ""),
			ValidationFileID: getEnv(KeyValidationFileID, ""),
			JobID:            getEnv(KeyJobID, ""),
			FineTunedModelID: getEnv(KeyFineTunedModelID, ""),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings needed to talk to the platform.
func (c *Config) Validate() error {
	var missing []string
	if c.DashScope.APIKey == "" {
		missing = append(missing, "DASHSCOPE_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.FineTune.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive")
	}
	return nil
}

// HyperParameters builds the request hyperparameters. LoRA settings are only
// included for parameter-efficient training.
func (c FineTuneConfig) HyperParameters() models.Hyperparameters {
	hp := models.Hyperparameters{
		NEpochs:      c.NEpochs,
		BatchSize:    c.BatchSize,
		LearningRate: c.LearningRate,
		Split:        c.Split,
		WarmupRatio:  c.WarmupRatio,
		EvalSteps:    c.EvalSteps,
		MaxLength:    c.MaxLength,
	}
	if c.TrainingType == models.TrainingTypeEfficientSFT {
		rank, alpha, dropout, modules := c.LoraRank, c.LoraAlpha, c.LoraDropout, c.TargetModules
		hp.LoraRank = &rank
		hp.LoraAlpha = &alpha
		hp.LoraDropout = &dropout
		hp.TargetModules = &modules
	}
	return hp
}

// Set persists key=value to the env file and applies it to the running
// process so later steps see it.
func (c *Config) Set(key, value string) error {
	if err := UpdateEnvFile(c.EnvFile, key, value); err != nil {
		return err
	}
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	switch key {
	case KeyTrainFileID:
		c.State.TrainFileID = value
	case KeyValidationFileID:
		c.State.ValidationFileID = value
	case KeyJobID:
		c.State.JobID = value
	case KeyFineTunedModelID:
		c.State.FineTunedModelID = value
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}
