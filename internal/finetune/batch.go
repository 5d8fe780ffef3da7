package finetune

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBatchSystemPrompt is the system turn used for batch conversion.
const DefaultBatchSystemPrompt = "你是一个专业的医学助手，擅长回答医学选择题。请根据题目和选项，给出正确答案。"

// ManifestEntry maps an input file, relative to the question root, to the
// name of its converted output.
type ManifestEntry struct {
	Input  string
	Output string
}

// DefaultManifest lists the MedQA splits converted for the platform.
var DefaultManifest = []ManifestEntry{
	// Mainland, 4 options
	{Input: "Mainland/4_options/train.jsonl", Output: "mainland_4opt_train.jsonl"},
	{Input: "Mainland/4_options/dev.jsonl", Output: "mainland_4opt_dev.jsonl"},
	{Input: "Mainland/4_options/test.jsonl", Output: "mainland_4opt_test.jsonl"},

	{Input: "Taiwan/train.jsonl", Output: "taiwan_train.jsonl"},
	{Input: "Taiwan/dev.jsonl", Output: "taiwan_dev.jsonl"},
	{Input: "Taiwan/test.jsonl", Output: "taiwan_test.jsonl"},

	// US, 4 options
	{Input: "US/4_options/phrases_no_exclude_train.jsonl", Output: "us_4opt_train.jsonl"},
	{Input: "US/4_options/phrases_no_exclude_dev.jsonl", Output: "us_4opt_dev.jsonl"},
	{Input: "US/4_options/phrases_no_exclude_test.jsonl", Output: "us_4opt_test.jsonl"},
}

type FileResult struct {
	DatasetFile
	Converted int
	Skipped   int
}

// BatchConvert converts every manifest entry found under baseInputDir into
// outputDir, one file at a time. Missing inputs and per-file failures are
// logged and skipped; the only error is an unusable output directory.
func BatchConvert(manifest []ManifestEntry, baseInputDir, outputDir, systemPrompt string) ([]FileResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var results []FileResult
	for _, entry := range manifest {
		inputPath := filepath.Join(baseInputDir, entry.Input)
		outputPath := filepath.Join(outputDir, entry.Output)

		if _, err := os.Stat(inputPath); err != nil {
			slog.Warn("skipping missing input", "input", entry.Input, "error", err)
			continue
		}

		slog.Info("converting", "input", entry.Input, "output", outputPath)

		res, err := ConvertFile(inputPath, outputPath, systemPrompt)
		if err != nil {
			slog.Error("conversion failed", "input", entry.Input, "error", err)
			continue
		}

		file, err := statDataset(outputPath)
		if err != nil {
			slog.Error("conversion failed", "input", entry.Input, "error", err)
			continue
		}

		result := FileResult{DatasetFile: file, Converted: res.Converted, Skipped: res.Skipped}
		result.Name = entry.Output
		results = append(results, result)

		slog.Info("converted",
			"output", entry.Output,
			"converted", res.Converted,
			"skipped", res.Skipped,
			"size_mb", fmt.Sprintf("%.2f", result.SizeMB()),
			"exceeds_limit", result.ExceedsLimit(),
		)
	}

	return results, nil
}

const reportRule = 60

// WriteBatchReport prints the per-file table, totals and any files that are
// over the platform limit.
func WriteBatchReport(w io.Writer, results []FileResult, outputDir string) {
	heavy := strings.Repeat("=", reportRule)
	light := strings.Repeat("-", reportRule)

	fmt.Fprintln(w, heavy)
	fmt.Fprintln(w, "转换汇总")
	fmt.Fprintln(w, heavy)

	var totalConverted, totalSkipped int
	var totalBytes int64
	var oversized []FileResult
	for _, r := range results {
		totalConverted += r.Converted
		totalSkipped += r.Skipped
		totalBytes += r.SizeBytes
		if r.ExceedsLimit() {
			oversized = append(oversized, r)
		}
		fmt.Fprintf(w, "%-35s %6d 条  %8.2f MB\n", r.Name, r.Converted, r.SizeMB())
	}

	fmt.Fprintln(w, light)
	total := DatasetFile{SizeBytes: totalBytes}
	fmt.Fprintf(w, "%-35s %6d 条  %8.2f MB\n", "总计", totalConverted, total.SizeMB())
	if totalSkipped > 0 {
		fmt.Fprintf(w, "跳过: %d 条\n", totalSkipped)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "输出目录: %s\n", outputDir)

	if len(oversized) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "⚠️  以下文件超过 300MB，需要分割:")
		for _, r := range oversized {
			fmt.Fprintf(w, "  - %s: %.2f MB\n", r.Name, r.SizeMB())
		}
	}
}
