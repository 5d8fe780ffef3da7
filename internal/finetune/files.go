package finetune

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// PlatformFileLimitBytes is the largest single file the platform accepts.
const PlatformFileLimitBytes int64 = 300 * 1024 * 1024

const DatasetSuffix = ".jsonl"

type DatasetFile struct {
	Path      string
	Name      string
	SizeBytes int64
}

func (f DatasetFile) SizeMB() float64 {
	return float64(f.SizeBytes) / (1024 * 1024)
}

// ExceedsLimit reports whether the file is strictly larger than the platform limit.
func (f DatasetFile) ExceedsLimit() bool {
	return f.SizeBytes > PlatformFileLimitBytes
}

func statDataset(path string) (DatasetFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return DatasetFile{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return DatasetFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return DatasetFile{}, fmt.Errorf("%s is a directory", path)
	}
	return DatasetFile{Path: abs, Name: info.Name(), SizeBytes: info.Size()}, nil
}

// ListDatasets returns the converted dataset files in dir, sorted by name.
func ListDatasets(dir string) ([]DatasetFile, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("dataset directory: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"+DatasetSuffix))
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	files := make([]DatasetFile, 0, len(matches))
	for _, m := range matches {
		f, err := statDataset(m)
		if err != nil {
			slog.Debug("ignoring dataset entry", "path", m, "error", err)
			continue
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
