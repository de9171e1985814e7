package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForPrompt asks for an image prompt on stdin. It returns "" if
// nothing was entered.
func PromptForPrompt() string {
	fmt.Print("Describe your slop (e.g. 'weird distorted face meme'): ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read prompt")
		return ""
	}
	return strings.TrimSpace(input)
}

// ReadPrompts reads one prompt per line, skipping blank lines and lines
// starting with '#'.
func ReadPrompts(r io.Reader) ([]string, error) {
	var prompts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}
	return prompts, nil
}
