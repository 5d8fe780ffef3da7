package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateEnvFile(t *testing.T) {
	tests := []struct {
		name     string
		initial  *string
		key      string
		value    string
		expected string
	}{
		{
			name:     "creates missing file",
			key:      "TRAIN_FILE_ID",
			value:    "file-1",
			expected: "TRAIN_FILE_ID=file-1\n",
		},
		{
			name:     "replaces in place",
			initial:  ptr("# comment\nA=1\nTRAIN_FILE_ID=old\nB=2\n"),
			key:      "TRAIN_FILE_ID",
			value:    "new",
			expected: "# comment\nA=1\nTRAIN_FILE_ID=new\nB=2\n",
		},
		{
			name:     "matches indented key",
			initial:  ptr("  TRAIN_FILE_ID=old\n"),
			key:      "TRAIN_FILE_ID",
			value:    "new",
			expected: "TRAIN_FILE_ID=new\n",
		},
		{
			name:     "does not match longer key",
			initial:  ptr("TRAIN_FILE_ID_BACKUP=keep\n"),
			key:      "TRAIN_FILE_ID",
			value:    "new",
			expected: "TRAIN_FILE_ID_BACKUP=keep\nTRAIN_FILE_ID=new\n",
		},
		{
			name:     "appends after missing trailing newline",
			initial:  ptr("A=1"),
			key:      "B",
			value:    "2",
			expected: "A=1\nB=2\n",
		},
		{
			name:     "only first match replaced",
			initial:  ptr("K=1\nK=2\n"),
			key:      "K",
			value:    "3",
			expected: "K=3\nK=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".env")
			if tt.initial != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.initial), 0o600))
			}

			require.NoError(t, UpdateEnvFile(path, tt.key, tt.value))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}
}

func TestUpdateEnvFile_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("A=1\n"), 0o600))

	require.NoError(t, UpdateEnvFile(path, "JOB", "ft-1"))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, UpdateEnvFile(path, "JOB", "ft-1"))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should be cleaned up")
}

func TestUpdateEnvFile_InvalidKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	for _, key := range []string{"", "A=B", "A\nB"} {
		assert.Error(t, UpdateEnvFile(path, key, "v"))
	}
}

func ptr(s string) *string { return &s }
