package workflow

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter gathers interactive input. Implementations should treat any
// answer other than an explicit yes as a decline.
type Prompter interface {
	// Ask prints the prompt and returns the trimmed answer line
	Ask(prompt string) (string, error)
	// Confirm prints the prompt and reports whether the user agreed
	Confirm(prompt string) (bool, error)
}

// StdioPrompter implements Prompter over a line-based reader and writer
type StdioPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdioPrompter creates a prompter reading from in and writing to out
func NewStdioPrompter(in io.Reader, out io.Writer) *StdioPrompter {
	return &StdioPrompter{in: bufio.NewReader(in), out: out}
}

// Ask prints the prompt and returns the trimmed answer line
func (p *StdioPrompter) Ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Confirm prints the prompt with a (Y/N) suffix. Only "y" and "yes" in any
// case count as agreement; everything else, including invalid input,
// declines.
func (p *StdioPrompter) Confirm(prompt string) (bool, error) {
	answer, err := p.Ask(prompt + " (Y/N): ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
