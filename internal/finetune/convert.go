package finetune

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nikhilbhutani/medqa-sft/internal/models"
)

const DefaultSystemPrompt = "你是一个专业的医学助手，擅长回答医学选择题。请根据题目和选项，给出正确答案及简要解释。"

type ConvertResult struct {
	Converted int
	Skipped   int
}

// FormatQuestion renders the question followed by its options in key order.
func FormatQuestion(question string, options map[string]string) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\n选项：\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s. %s\n", k, options[k])
	}
	return strings.TrimSpace(b.String())
}

func FormatAnswer(answerIdx, answer string) string {
	return fmt.Sprintf("答案是 %s. %s", answerIdx, answer)
}

// ToTrainingExample builds the system/user/assistant triple for one record.
func ToTrainingExample(rec models.QARecord, systemPrompt string) TrainingExample {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return TrainingExample{
		Messages: []TrainingMessage{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: FormatQuestion(rec.Question, rec.Options)},
			{Role: RoleAssistant, Content: FormatAnswer(rec.AnswerIdx, rec.Answer)},
		},
	}
}

// parseRecord reads one question line. Only the shape of the record is
// enforced: it must be an object, question must be a string and options an
// object when present. Other scalars are rendered as text and unknown fields
// are ignored.
func parseRecord(line []byte) (models.QARecord, error) {
	if !gjson.ValidBytes(line) {
		return models.QARecord{}, errors.New("invalid JSON")
	}
	obj := gjson.ParseBytes(line)
	if !obj.IsObject() {
		return models.QARecord{}, errors.New("not a JSON object")
	}

	question := obj.Get("question")
	if question.Exists() && question.Type != gjson.String && question.Type != gjson.Null {
		return models.QARecord{}, fmt.Errorf("question is %s, not a string", question.Type)
	}
	options := obj.Get("options")
	if options.Exists() && options.Type != gjson.Null && !options.IsObject() {
		return models.QARecord{}, fmt.Errorf("options is not an object: %s", options.Raw)
	}

	rec := models.QARecord{
		Question:  question.String(),
		Options:   make(map[string]string),
		Answer:    scalarText(obj.Get("answer")),
		AnswerIdx: scalarText(obj.Get("answer_idx")),
	}
	if meta := obj.Get("meta_info"); meta.Exists() {
		rec.MetaInfo = json.RawMessage(meta.Raw)
	}
	options.ForEach(func(key, value gjson.Result) bool {
		rec.Options[key.String()] = scalarText(value)
		return true
	})
	return rec, nil
}

// scalarText renders a JSON value as text: strings unquoted, null or missing
// as empty, anything else as its JSON source.
func scalarText(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return ""
	default:
		return v.Raw
	}
}

// Convert streams QA records from r and writes chat examples to w.
// Malformed or oversized lines are logged and counted as skipped; only read
// or write failures are returned.
func Convert(r io.Reader, w io.Writer, systemPrompt string) (ConvertResult, error) {
	var res ConvertResult

	bw := bufio.NewWriter(w)
	enc := newExampleEncoder(bw)
	lines := newLineReader(r)

	lineNum := 0
	for {
		raw, err := lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNum++
		if errors.Is(err, errLineTooLong) {
			slog.Warn("skipping line", "line", lineNum, "error", err, "limit_bytes", maxLineBytes)
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("read line %d: %w", lineNum, err)
		}

		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		rec, err := parseRecord(line)
		if err != nil {
			slog.Warn("skipping line", "line", lineNum, "error", err)
			res.Skipped++
			continue
		}

		if err := enc.Encode(ToTrainingExample(rec, systemPrompt)); err != nil {
			return res, fmt.Errorf("write line %d: %w", lineNum, err)
		}
		res.Converted++
	}

	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("flush output: %w", err)
	}
	return res, nil
}

// ConvertFile converts inputPath into outputPath, creating the output
// directory when needed. An existing output file is truncated.
func ConvertFile(inputPath, outputPath, systemPrompt string) (ConvertResult, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return ConvertResult{}, fmt.Errorf("create output directory: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("create output: %w", err)
	}

	res, err := Convert(in, out, systemPrompt)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return res, err
}
