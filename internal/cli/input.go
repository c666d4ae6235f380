package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var stdin io.Reader = os.Stdin

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// prompter asks the user for input. Prompts go to stderr so stdout only carries results.
type prompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{in: in, reader: bufio.NewReader(in), out: cmd.ErrOrStderr()}
}

// line reads one trimmed line. A final line without a newline is accepted.
func (p *prompter) line(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", err
	}
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// password reads without echo on a terminal and falls back to a plain line
// otherwise, so passwords can be piped in.
func (p *prompter) password(prompt string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, prompt)
		pw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	pw, err := p.line(prompt)
	if err != nil {
		return "", err
	}
	return pw, nil
}

// valueOr prompts only when the flag value is empty.
func (p *prompter) valueOr(current, prompt string) (string, error) {
	if current != "" {
		return current, nil
	}
	return p.line(prompt)
}
