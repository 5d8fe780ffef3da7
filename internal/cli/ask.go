package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SampleQuestions are formatted the same way as converted training data.
var SampleQuestions = []string{
	`卧位腰椎穿刺，脑脊液压力正常值是（　　）。

选项：
A. 80～180mmH2O（0.78～1.76kPa）
B. 50～70mmH2O（0.49～0.69kPa）
C. 230～250mmH2O（2.25～2.45kPa）
D. 260～280mmH2O（2.55～2.74kPa）`,
	`急性阑尾炎最常见的并发症是（　　）。

选项：
A. 阑尾穿孔
B. 腹膜炎
C. 肠梗阻
D. 脓肿形成`,
}

func newAskCmd() *cobra.Command {
	var modelID string
	var questions []string

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask sample questions to the fine-tuned model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPlatformConfig()
			if err != nil {
				return err
			}
			if modelID == "" {
				modelID = cfg.State.FineTunedModelID
			}
			if modelID == "" {
				return errors.New("FINE_TUNED_MODEL_ID is not set; deploy the model in the Bailian console first or pass --model")
			}
			if len(questions) == 0 {
				questions = SampleQuestions
			}

			runner := newRunner(cfg, cmd)
			out := cmd.OutOrStdout()
			rule := strings.Repeat("=", 60)

			fmt.Fprintf(out, "🤖 使用微调模型: %s\n", modelID)
			for i, q := range questions {
				fmt.Fprintf(out, "\n%s\n问题 %d:\n%s\n%s\n", rule, i+1, rule, q)
				runner.TestModel(cmd.Context(), modelID, q)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "", "fine-tuned model id (default FINE_TUNED_MODEL_ID)")
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "question to ask; repeatable")
	return cmd
}
