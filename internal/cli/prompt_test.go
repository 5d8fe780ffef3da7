package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return NewPrompter(strings.NewReader(input), &out), &out
}

func TestPrompter_Line(t *testing.T) {
	p, out := newTestPrompter("  hello \nlast")

	got, err := p.Line("> ")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "> ", out.String())

	got, err = p.Line("> ")
	require.NoError(t, err, "text without a trailing newline is still an answer")
	assert.Equal(t, "last", got)

	_, err = p.Line("> ")
	assert.ErrorIs(t, err, io.EOF)
}

func TestPrompter_ChooseIndex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		optional bool
		want     int
		invalid  int
	}{
		{name: "first", input: "1\n", want: 0},
		{name: "reprompt until valid", input: "abc\n9\n2\n", want: 1, invalid: 2},
		{name: "empty required", input: "\n3\n", want: 2, invalid: 1},
		{name: "empty optional", input: "\n", optional: true, want: -1},
		{name: "padded", input: " 3 \n", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out := newTestPrompter(tt.input)
			got, err := p.ChooseIndex(3, tt.optional)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.invalid, strings.Count(out.String(), "无效的编号"))
		})
	}
}

func TestPrompter_ChooseIndexEOF(t *testing.T) {
	p, _ := newTestPrompter("7\n")
	_, err := p.ChooseIndex(3, true)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPrompter_Menu(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Actions
		wantOK bool
	}{
		{name: "upload", input: "1\n", want: Actions{Upload: true}, wantOK: true},
		{name: "create", input: "2\n", want: Actions{Create: true}, wantOK: true},
		{name: "status", input: "3\nft-9\n", want: Actions{Status: "ft-9"}, wantOK: true},
		{name: "monitor", input: "4\nft-1\n", want: Actions{Monitor: "ft-1"}, wantOK: true},
		{name: "test", input: "5\nqwen-ft\n", want: Actions{Test: "qwen-ft"}, wantOK: true},
		{name: "auto", input: "6\n", want: Actions{Auto: true}, wantOK: true},
		{name: "cancel", input: "7\nft-2\n", want: Actions{Cancel: "ft-2"}, wantOK: true},
		{name: "exit", input: "0\n"},
		{name: "invalid", input: "8\n"},
		{name: "empty job id", input: "3\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPrompter(tt.input)
			got, ok, err := p.Menu()
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPrompter_MenuEOF(t *testing.T) {
	p, _ := newTestPrompter("")
	_, ok, err := p.Menu()
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, ok)
}

func TestActions_Empty(t *testing.T) {
	assert.True(t, Actions{}.Empty())
	assert.False(t, Actions{Status: "ft-1"}.Empty())
	assert.False(t, Actions{Auto: true}.Empty())
}
