package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/medqa-sft/internal/config"
)

var (
	envFile string
	verbose bool
	logJSON bool
)

// NewRootCmd builds the medqa-sft command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "medqa-sft",
		Short: "Convert MedQA to Bailian SFT format and drive DashScope fine-tuning",
		Long: `medqa-sft converts the MedQA multiple-choice dataset into the chat JSONL
format accepted by the Bailian platform, then uploads the files, creates
fine-tune jobs, monitors them and tests the resulting model.

Example:
  medqa-sft batch
  medqa-sft finetune --auto
  medqa-sft finetune --monitor ft-202410-abc`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "env file holding credentials and job state")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")

	rootCmd.AddCommand(
		newConvertCmd(),
		newBatchCmd(),
		newValidateCmd(),
		newFinetuneCmd(),
		newAskCmd(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
