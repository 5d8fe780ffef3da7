package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/medqa-sft/internal/config"
	"github.com/nikhilbhutani/medqa-sft/internal/dashscope"
	"github.com/nikhilbhutani/medqa-sft/internal/finetune"
	"github.com/nikhilbhutani/medqa-sft/internal/llm"
	"github.com/nikhilbhutani/medqa-sft/internal/models"
)

// Actions is the normalized set of operations requested either by flags or
// by the interactive menu.
type Actions struct {
	Upload  bool
	Create  bool
	Auto    bool
	Status  string
	Monitor string
	Test    string
	Cancel  string
}

func (a Actions) Empty() bool {
	return !a.Upload && !a.Create && !a.Auto &&
		a.Status == "" && a.Monitor == "" && a.Test == "" && a.Cancel == ""
}

// JobClient is the subset of the DashScope client the pipeline uses.
type JobClient interface {
	UploadFile(ctx context.Context, path, description string) (string, error)
	CreateJob(ctx context.Context, req dashscope.CreateJobRequest) (*models.FineTuneJob, error)
	GetJobStatus(ctx context.Context, jobID string) (*models.FineTuneJob, error)
	CancelJob(ctx context.Context, jobID string) error
	Monitor(ctx context.Context, jobID string, interval time.Duration, out io.Writer) (*models.FineTuneJob, error)
}

const (
	testSystemPrompt = "你是一个专业的医学助手，擅长回答医学选择题。"
	consoleURL       = "https://bailian.console.aliyun.com/"
)

// Runner executes Actions against the platform.
type Runner struct {
	cfg    *config.Config
	jobs   JobClient
	chat   llm.Provider
	prompt *Prompter
	out    io.Writer
}

func NewRunner(cfg *config.Config, jobs JobClient, chat llm.Provider, prompt *Prompter, out io.Writer) *Runner {
	return &Runner{cfg: cfg, jobs: jobs, chat: chat, prompt: prompt, out: out}
}

// Run performs the requested steps in pipeline order. Remote failures are
// reported and stop dependent steps; the returned error is reserved for
// unusable operator input.
func (r *Runner) Run(ctx context.Context, a Actions) error {
	if a.Upload || a.Auto {
		trainID, proceed, err := r.upload(ctx)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
		if a.Auto && trainID != "" {
			a.Create = true
		}
	}

	if a.Create {
		jobID, err := r.create(ctx)
		if err != nil {
			return err
		}
		if a.Auto && jobID != "" {
			a.Monitor = jobID
		}
	}

	if a.Status != "" {
		r.status(ctx, a.Status)
	}
	if a.Cancel != "" {
		r.cancel(ctx, a.Cancel)
	}
	if a.Monitor != "" {
		r.monitor(ctx, a.Monitor)
	}
	if a.Test != "" {
		r.TestModel(ctx, a.Test, "")
	}
	return nil
}

func (r *Runner) printRule() {
	fmt.Fprintln(r.out, strings.Repeat("=", 60))
}

func (r *Runner) listDatasets() []finetune.DatasetFile {
	fmt.Fprintln(r.out)
	r.printRule()
	fmt.Fprintln(r.out, "📁 可用的数据集:")
	r.printRule()

	files, err := finetune.ListDatasets(r.cfg.Paths.DataDir)
	if err != nil {
		slog.Debug("list datasets failed", "dir", r.cfg.Paths.DataDir, "error", err)
		fmt.Fprintln(r.out, "❌ 数据集目录不存在，请先运行 medqa-sft batch 转换数据")
		return nil
	}
	if len(files) == 0 {
		fmt.Fprintf(r.out, "❌ %s 中没有 %s 文件\n", r.cfg.Paths.DataDir, finetune.DatasetSuffix)
		return nil
	}

	for i, f := range files {
		mark := ""
		if f.ExceedsLimit() {
			mark = " ⚠️  超过 300MB"
		}
		fmt.Fprintf(r.out, "%d. %s (%.2f MB)%s\n", i+1, f.Name, f.SizeMB(), mark)
	}
	return files
}

// upload asks for the training and optional validation files and uploads
// them. proceed is false when there is nothing to upload.
func (r *Runner) upload(ctx context.Context) (trainID string, proceed bool, err error) {
	files := r.listDatasets()
	if len(files) == 0 {
		return "", false, nil
	}

	fmt.Fprintln(r.out, "\n请选择训练集:")
	trainIdx, err := r.prompt.ChooseIndex(len(files), false)
	if err != nil {
		return "", false, err
	}

	fmt.Fprintln(r.out, "\n请选择验证集（可选，直接回车跳过）:")
	valIdx, err := r.prompt.ChooseIndex(len(files), true)
	if err != nil {
		return "", false, err
	}

	trainID = r.uploadOne(ctx, files[trainIdx], "训练集")
	if trainID != "" {
		r.persist(config.KeyTrainFileID, trainID)
	}

	if valIdx >= 0 {
		if valID := r.uploadOne(ctx, files[valIdx], "验证集"); valID != "" {
			r.persist(config.KeyValidationFileID, valID)
		}
	}
	return trainID, true, nil
}

func (r *Runner) uploadOne(ctx context.Context, f finetune.DatasetFile, description string) string {
	fmt.Fprintf(r.out, "\n⬆️  上传文件: %s\n", f.Name)

	id, err := r.jobs.UploadFile(ctx, f.Path, description)
	if err != nil {
		slog.Error("upload failed", "file", f.Name, "error", err)
		fmt.Fprintf(r.out, "❌ 上传失败: %v\n", err)
		return ""
	}
	fmt.Fprintf(r.out, "✅ 上传成功! File ID: %s\n", id)
	return id
}

func (r *Runner) create(ctx context.Context) (string, error) {
	trainID := r.cfg.State.TrainFileID
	if trainID == "" {
		var err error
		trainID, err = r.prompt.Line("请输入训练集 File ID: ")
		if err != nil {
			return "", fmt.Errorf("read training file id: %w", err)
		}
		if trainID == "" {
			fmt.Fprintln(r.out, "❌ 未提供训练集 File ID")
			return "", nil
		}
	}

	valID := r.cfg.State.ValidationFileID
	current := valID
	if current == "" {
		current = "无"
	}
	answer, err := r.prompt.Line(fmt.Sprintf("请输入验证集 File ID（当前: %s，直接回车使用当前值）: ", current))
	if err != nil {
		return "", fmt.Errorf("read validation file id: %w", err)
	}
	if answer != "" {
		valID = answer
	}

	ft := r.cfg.FineTune
	hp := ft.HyperParameters()
	hpJSON, _ := json.MarshalIndent(hp, "   ", "  ")

	fmt.Fprintln(r.out, "\n🚀 创建微调任务...")
	fmt.Fprintf(r.out, "   基础模型: %s\n", ft.BaseModel)
	fmt.Fprintf(r.out, "   训练类型: %s\n", ft.TrainingType)
	fmt.Fprintf(r.out, "   超参数: %s\n", hpJSON)

	req := dashscope.CreateJobRequest{
		Model:           ft.BaseModel,
		TrainingFileIDs: []string{trainID},
		HyperParameters: hp,
		TrainingType:    ft.TrainingType,
	}
	if valID != "" {
		req.ValidationFileIDs = []string{valID}
	}

	job, err := r.jobs.CreateJob(ctx, req)
	if err != nil {
		slog.Error("create job failed", "error", err)
		fmt.Fprintf(r.out, "❌ 创建失败: %v\n", err)
		return "", nil
	}

	fmt.Fprintln(r.out, "\n✅ 微调任务创建成功!")
	fmt.Fprintf(r.out, "   Job ID: %s\n", job.JobID)
	fmt.Fprintf(r.out, "   状态: %s\n", job.Status)
	r.persist(config.KeyJobID, job.JobID)
	return job.JobID, nil
}

func (r *Runner) status(ctx context.Context, jobID string) {
	job, err := r.jobs.GetJobStatus(ctx, jobID)
	if err != nil {
		slog.Error("query job status failed", "job_id", jobID, "error", err)
		fmt.Fprintf(r.out, "❌ 查询失败: %v\n", err)
		return
	}

	fmt.Fprintln(r.out)
	r.printRule()
	fmt.Fprintf(r.out, "📊 任务状态: %s\n", jobID)
	r.printRule()
	fmt.Fprintln(r.out, job.PrettyJSON())
}

func (r *Runner) cancel(ctx context.Context, jobID string) {
	if err := r.jobs.CancelJob(ctx, jobID); err != nil {
		slog.Error("cancel job failed", "job_id", jobID, "error", err)
		fmt.Fprintf(r.out, "❌ 取消失败: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "🚫 已请求取消任务: %s\n", jobID)
}

func (r *Runner) monitor(ctx context.Context, jobID string) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	interval := r.cfg.FineTune.MonitorInterval
	fmt.Fprintf(r.out, "\n👀 监控微调任务: %s\n", jobID)
	fmt.Fprintf(r.out, "   检查间隔: %s\n", interval)
	fmt.Fprintln(r.out, "   按 Ctrl+C 可退出监控（不影响训练任务）")
	fmt.Fprintln(r.out)

	job, err := r.jobs.Monitor(ctx, jobID, interval, r.out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(r.out, "\n\n⚠️  退出监控（训练任务仍在后台继续）")
			fmt.Fprintln(r.out, "💡 使用以下命令继续查看状态:")
			fmt.Fprintf(r.out, "   medqa-sft finetune --status %s\n", jobID)
			return
		}
		slog.Error("monitor failed", "job_id", jobID, "error", err)
		fmt.Fprintf(r.out, "❌ 监控出错: %v\n", err)
		return
	}

	if job.Status == models.JobStatusSucceeded && job.FineTunedModel != "" {
		r.persist(config.KeyFineTunedModelID, job.FineTunedModel)
		fmt.Fprintln(r.out, "\n📝 下一步: 在百炼控制台部署模型")
		fmt.Fprintf(r.out, "   控制台地址: %s\n", consoleURL)
	}
}

// TestModel sends one question to a fine-tuned model and prints the answer.
func (r *Runner) TestModel(ctx context.Context, modelID, question string) {
	if question == "" {
		question = SampleQuestions[0]
	}
	fmt.Fprintf(r.out, "\n🧪 测试微调模型: %s\n\n", modelID)

	resp, err := r.chat.ChatCompletion(ctx, llm.ChatRequest{
		Model: modelID,
		Messages: []llm.Message{
			{Role: finetune.RoleSystem, Content: testSystemPrompt},
			{Role: finetune.RoleUser, Content: question},
		},
	})
	if err != nil {
		slog.Error("test model failed", "model", modelID, "error", err)
		fmt.Fprintf(r.out, "❌ 调用失败: %v\n", err)
		return
	}

	rule := strings.Repeat("-", 60)
	fmt.Fprintln(r.out, "📊 模型回答:")
	fmt.Fprintln(r.out, rule)
	fmt.Fprintln(r.out, resp.Content)
	fmt.Fprintln(r.out, rule)
	fmt.Fprintf(r.out, "   模型: %s | tokens: 输入 %d, 输出 %d, 总计 %d | 耗时: %d ms\n",
		resp.Model, resp.InputTokens, resp.OutputTokens, resp.TotalTokens, resp.LatencyMs)
}

func (r *Runner) persist(key, value string) {
	if err := r.cfg.Set(key, value); err != nil {
		slog.Error("update env file failed", "key", key, "error", err)
		fmt.Fprintf(r.out, "💡 请手动保存到 %s: %s=%s\n", r.cfg.EnvFile, key, value)
		return
	}
	fmt.Fprintf(r.out, "✅ 已更新 %s: %s=%s\n", r.cfg.EnvFile, key, value)
}

func loadPlatformConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRunner(cfg *config.Config, cmd *cobra.Command) *Runner {
	jobs := dashscope.NewClient(dashscope.Config{
		BaseURL: cfg.DashScope.BaseURL,
		APIKey:  cfg.DashScope.APIKey,
		Debug:   verbose,
	})
	chat := llm.NewOpenAIProvider(cfg.DashScope.APIKey, cfg.DashScope.CompatibleBaseURL)
	prompt := NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	return NewRunner(cfg, jobs, chat, prompt, cmd.OutOrStdout())
}

func newFinetuneCmd() *cobra.Command {
	var a Actions

	cmd := &cobra.Command{
		Use:   "finetune",
		Short: "Upload datasets, create and monitor fine-tune jobs",
		Long: `Runs one or more fine-tune steps. Flags can be combined; --auto runs
upload, create and monitor in sequence. Without flags an interactive menu
is shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPlatformConfig()
			if err != nil {
				return err
			}
			runner := newRunner(cfg, cmd)

			if a.Empty() {
				var ok bool
				a, ok, err = runner.prompt.Menu()
				if err != nil {
					slog.Error("read menu choice", "error", err)
					return nil
				}
				if !ok {
					return nil
				}
			}

			if err := runner.Run(cmd.Context(), a); err != nil {
				slog.Error("finetune aborted", "error", err)
				fmt.Fprintf(cmd.OutOrStdout(), "\n❌ 发生错误: %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&a.Upload, "upload", false, "upload training files")
	cmd.Flags().BoolVar(&a.Create, "create", false, "create a fine-tune job")
	cmd.Flags().StringVar(&a.Status, "status", "", "query job status (job id)")
	cmd.Flags().StringVar(&a.Monitor, "monitor", "", "monitor job progress (job id)")
	cmd.Flags().StringVar(&a.Test, "test", "", "test a fine-tuned model (model id)")
	cmd.Flags().StringVar(&a.Cancel, "cancel", "", "cancel a fine-tune job (job id)")
	cmd.Flags().BoolVar(&a.Auto, "auto", false, "run upload, create and monitor in sequence")
	return cmd
}
