package utils

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/morler/repomuse/constants/lipgloss"
)

// ConfirmPrompt asks a yes/no question and reports whether the answer was yes.
// An empty answer, EOF or a cancelled ctx count as no.
func ConfirmPrompt(ctx context.Context, reader *bufio.Reader, question string) (bool, error) {
	answers := make(chan string, 1)
	errs := make(chan error, 1)

	go func() {
		fmt.Print(lipgloss.BlueSky.Render(question + " (y/N): "))

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			errs <- fmt.Errorf("error reading input: %w", err)
			return
		}
		answers <- strings.ToLower(strings.TrimSpace(line))
	}()

	select {
	case <-ctx.Done():
		fmt.Println()
		return false, ctx.Err()
	case err := <-errs:
		return false, err
	case answer := <-answers:
		return answer == "y" || answer == "yes", nil
	}
}
