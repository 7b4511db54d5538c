package utils

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morler/repomuse/code_analyzer/models"
)

func TestLexerName(t *testing.T) {
	assert.Equal(t, "Go", lexerName(models.FileInfo{Path: "main.go", Language: "Go"}))
	assert.Equal(t, "Rust", lexerName(models.FileInfo{Path: "lib.rs", Language: "Unknown"}))
	assert.Equal(t, "plaintext", lexerName(models.FileInfo{Path: "notes.zzz-unknown"}))
}

func TestRenderSampledFiles(t *testing.T) {
	var buf bytes.Buffer
	files := []models.FileInfo{
		{Path: "main.go", Language: "Go", Content: "package main", Size: 12},
		{Path: "README.md", Language: "Markdown", Content: "# hello\n", Size: 8},
	}
	require.NoError(t, RenderSampledFiles(context.Background(), &buf, files, "dracula"))
	out := buf.String()
	assert.Contains(t, out, "main.go")
	assert.Contains(t, out, "README.md")
	assert.Contains(t, out, "main")
}

func TestRenderSampledFiles_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := RenderSampledFiles(ctx, &buf, []models.FileInfo{{Path: "a.go", Content: "x"}}, "dracula")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, buf.String(), "a.go")
}

func TestConfirmPrompt(t *testing.T) {
	for input, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false} {
		got, err := ConfirmPrompt(context.Background(), bufio.NewReader(strings.NewReader(input)), "Proceed?")
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", input)
	}
}
