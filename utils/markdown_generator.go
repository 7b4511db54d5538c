package utils

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"

	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/constants/lipgloss"
)

// lexerName picks a chroma lexer for a sampled file, preferring the detected
// language and falling back to the file name.
func lexerName(f models.FileInfo) string {
	if f.Language != "" && f.Language != "Unknown" && lexers.Get(f.Language) != nil {
		return f.Language
	}
	if l := lexers.Match(f.Path); l != nil {
		return l.Config().Name
	}
	return "plaintext"
}

// RenderSampledFiles writes every sampled file of a digest with syntax
// highlighting. It stops between files when ctx is cancelled.
func RenderSampledFiles(ctx context.Context, w io.Writer, files []models.FileInfo, theme string) error {
	for _, f := range files {
		select {
		case <-ctx.Done():
			fmt.Fprintf(w, "\n\n🔄 Output interrupted...\n")
			return ctx.Err()
		default:
		}

		header := fmt.Sprintf("%s  (%s, %d bytes)", f.Path, f.Language, f.Size)
		fmt.Fprintln(w, lipgloss.Info.Render(header))

		content := f.Content
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := quick.Highlight(w, content, lexerName(f), "terminal256", theme); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}
