// pkg/cli/shell.go
package cli

import (
	"bufio"
	"io"
	"strings"
)

// Shell handles line-oriented input for the interactive index prompt.
type Shell struct {
	// reader reads input lines
	reader *bufio.Reader

	// output writes normal output
	output io.Writer

	// errOutput writes error messages
	errOutput io.Writer

	// prompt is shown before each command
	prompt string

	// history stores entered commands for recall
	history []string

	// maxHistory is the maximum number of history entries to keep
	maxHistory int
}

// NewShell creates a new interactive shell with the given input/output
// streams. If errOutput is nil, errors are written to output.
func NewShell(input io.Reader, output, errOutput io.Writer) *Shell {
	var reader *bufio.Reader
	if input != nil {
		reader = bufio.NewReader(input)
	}

	if errOutput == nil {
		errOutput = output
	}

	return &Shell{
		reader:     reader,
		output:     output,
		errOutput:  errOutput,
		prompt:     "firidx> ",
		history:    make([]string, 0),
		maxHistory: 1000,
	}
}

// SetPrompt changes the prompt string.
func (s *Shell) SetPrompt(prompt string) {
	s.prompt = prompt
}

// ReadCommand prints the prompt and reads one command line, stripping
// surrounding whitespace. It returns the line and whether EOF was
// reached. Non-empty lines are appended to the history.
func (s *Shell) ReadCommand() (string, bool) {
	if s.reader == nil {
		return "", true
	}

	io.WriteString(s.output, s.prompt)

	line, err := s.reader.ReadString('\n')
	eof := err != nil

	line = strings.TrimSpace(line)
	if line != "" {
		s.addHistory(line)
	}
	return line, eof
}

// History returns the recorded command history, oldest first.
func (s *Shell) History() []string {
	return s.history
}

func (s *Shell) addHistory(line string) {
	s.history = append(s.history, line)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
}
