package finetune

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// TrainingExample represents a single training example in chat format.
type TrainingExample struct {
	Messages []TrainingMessage `json:"messages"`
}

type TrainingMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// maxLineBytes bounds a single JSONL line for both reading and validation.
var maxLineBytes = 64 * 1024 * 1024

var errLineTooLong = errors.New("line too long")

// lineReader splits input into lines. A line longer than maxLineBytes is
// consumed whole and reported as errLineTooLong, and reading can go on.
type lineReader struct {
	r   *bufio.Reader
	max int
	buf []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 1024*1024), max: maxLineBytes}
}

// Next returns the next line without its terminator. The slice is only valid
// until the following call. io.EOF marks the end of input.
func (l *lineReader) Next() ([]byte, error) {
	l.buf = l.buf[:0]
	started, tooLong := false, false
	for {
		frag, isPrefix, err := l.r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && started {
				break
			}
			return nil, err
		}
		started = true

		if !tooLong {
			if len(l.buf)+len(frag) > l.max {
				tooLong = true
				l.buf = l.buf[:0]
			} else {
				l.buf = append(l.buf, frag...)
			}
		}
		if !isPrefix {
			break
		}
	}

	if tooLong {
		return nil, errLineTooLong
	}
	return l.buf, nil
}

// newExampleEncoder writes one compact JSON object per line without escaping
// non-ASCII or HTML-sensitive characters.
func newExampleEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// ValidateJSONL validates a chat-format JSONL file and returns the record count.
func ValidateJSONL(r io.Reader) (int, error) {
	lines := newLineReader(r)

	count := 0
	lineNum := 0
	for {
		raw, err := lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNum++
		if errors.Is(err, errLineTooLong) {
			return count, fmt.Errorf("line %d: exceeds %d bytes", lineNum, maxLineBytes)
		}
		if err != nil {
			return count, fmt.Errorf("scan error: %w", err)
		}

		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		var example TrainingExample
		if err := json.Unmarshal(line, &example); err != nil {
			return count, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}

		if len(example.Messages) < 2 {
			return count, fmt.Errorf("line %d: need at least 2 messages (user + assistant)", lineNum)
		}

		hasUser := false
		hasAssistant := false
		for _, m := range example.Messages {
			switch m.Role {
			case RoleSystem:
			case RoleUser:
				hasUser = true
			case RoleAssistant:
				hasAssistant = true
			default:
				return count, fmt.Errorf("line %d: invalid role %q", lineNum, m.Role)
			}
			if m.Content == "" {
				return count, fmt.Errorf("line %d: empty content for role %s", lineNum, m.Role)
			}
		}

		if !hasUser || !hasAssistant {
			return count, fmt.Errorf("line %d: need at least one user and one assistant message", lineNum)
		}

		count++
	}

	if count == 0 {
		return 0, fmt.Errorf("empty dataset")
	}

	return count, nil
}
