package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/medqa-sft/internal/config"
	"github.com/nikhilbhutani/medqa-sft/internal/finetune"
)

func newConvertCmd() *cobra.Command {
	var systemPrompt string

	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert one MedQA JSONL file to Bailian SFT format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, output := args[0], args[1]
			out := cmd.OutOrStdout()

			if _, err := os.Stat(input); err != nil {
				fmt.Fprintf(out, "错误: 输入文件 '%s' 不存在\n", input)
				return nil
			}

			fmt.Fprintf(out, "开始转换: %s -> %s\n", input, output)
			fmt.Fprintf(out, "系统提示: %s\n\n", systemPrompt)

			res, err := finetune.ConvertFile(input, output, systemPrompt)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "\n转换完成!")
			fmt.Fprintf(out, "成功转换: %d 条\n", res.Converted)
			fmt.Fprintf(out, "跳过: %d 条\n", res.Skipped)
			fmt.Fprintf(out, "输出文件: %s\n", output)

			info, err := os.Stat(output)
			if err != nil {
				return fmt.Errorf("stat output: %w", err)
			}
			file := finetune.DatasetFile{Path: output, Name: info.Name(), SizeBytes: info.Size()}
			fmt.Fprintf(out, "输出文件大小: %.2f MB\n", file.SizeMB())
			if file.ExceedsLimit() {
				fmt.Fprintln(out, "\n警告: 文件大小超过 300MB，百炼平台限制单个文件最大 300MB")
				fmt.Fprintln(out, "建议将数据分割成多个文件上传")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&systemPrompt, "system-prompt", finetune.DefaultSystemPrompt, "system prompt for every example")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var baseDir, outputDir, systemPrompt string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Convert every MedQA split in the default manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if baseDir == "" {
				baseDir = cfg.Paths.QuestionsDir
			}
			if outputDir == "" {
				outputDir = cfg.Paths.DataDir
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "批量转换 MedQA 数据集为百炼平台格式")
			fmt.Fprintln(out)

			results, err := finetune.BatchConvert(finetune.DefaultManifest, baseDir, outputDir, systemPrompt)
			if err != nil {
				return err
			}
			finetune.WriteBatchReport(out, results, outputDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseDir, "base-dir", "", "MedQA questions directory (default QUESTIONS_DIR)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (default DATA_DIR)")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", finetune.DefaultBatchSystemPrompt, "system prompt for every example")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check converted chat JSONL files before upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var failed []string
			for _, path := range args {
				count, err := validateFile(path)
				if err != nil {
					fmt.Fprintf(out, "❌ %s: %v\n", path, err)
					failed = append(failed, path)
					continue
				}
				fmt.Fprintf(out, "✅ %s: %d 条\n", path, count)
			}
			if len(failed) > 0 {
				return errors.New("validation failed")
			}
			return nil
		},
	}
}

func validateFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if (finetune.DatasetFile{SizeBytes: info.Size()}).ExceedsLimit() {
		return 0, fmt.Errorf("file exceeds platform limit (%d bytes)", finetune.PlatformFileLimitBytes)
	}
	return finetune.ValidateJSONL(f)
}
