package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter reads operator answers line by line.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Line prints prompt and returns the trimmed answer. io.EOF is returned only
// when the input ends before anything was typed.
func (p *Prompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ChooseIndex asks for a 1-based position in a list of n items and returns it
// 0-based. Invalid answers are re-asked. When optional is set an empty
// answer returns -1.
func (p *Prompter) ChooseIndex(n int, optional bool) (int, error) {
	for {
		answer, err := p.Line("输入编号: ")
		if err != nil {
			return -1, fmt.Errorf("read selection: %w", err)
		}
		if answer == "" && optional {
			return -1, nil
		}

		idx, err := strconv.Atoi(answer)
		if err != nil || idx < 1 || idx > n {
			fmt.Fprintf(p.out, "❌ 无效的编号 %q，请输入 1-%d\n", answer, n)
			continue
		}
		return idx - 1, nil
	}
}

// Menu shows the interactive operation menu and translates the choice into
// Actions. ok is false when the operator chose to exit or made an invalid
// choice.
func (p *Prompter) Menu() (a Actions, ok bool, err error) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(p.out, "\n%s\n🎯 阿里云百炼平台微调自动化工具\n%s\n", rule, rule)
	fmt.Fprintln(p.out, "\n请选择操作:")
	fmt.Fprintln(p.out, "1. 上传训练文件")
	fmt.Fprintln(p.out, "2. 创建微调任务")
	fmt.Fprintln(p.out, "3. 查询任务状态")
	fmt.Fprintln(p.out, "4. 监控任务进度")
	fmt.Fprintln(p.out, "5. 测试微调模型")
	fmt.Fprintln(p.out, "6. 自动执行完整流程")
	fmt.Fprintln(p.out, "7. 取消微调任务")
	fmt.Fprintln(p.out, "0. 退出")

	choice, err := p.Line("\n请输入选项 (0-7): ")
	if err != nil {
		return a, false, err
	}

	switch choice {
	case "1":
		a.Upload = true
	case "2":
		a.Create = true
	case "3":
		a.Status, err = p.Line("请输入 Job ID: ")
	case "4":
		a.Monitor, err = p.Line("请输入 Job ID: ")
	case "5":
		a.Test, err = p.Line("请输入 Model ID: ")
	case "6":
		a.Auto = true
	case "7":
		a.Cancel, err = p.Line("请输入 Job ID: ")
	case "0":
		fmt.Fprintln(p.out, "👋 再见!")
		return a, false, nil
	default:
		fmt.Fprintln(p.out, "❌ 无效的选项")
		return a, false, nil
	}
	if err != nil {
		return a, false, err
	}
	return a, !a.Empty(), nil
}
