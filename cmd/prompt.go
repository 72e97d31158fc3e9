package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the command's input. Secrets are read without
// echo when the input is a terminal.
type prompter struct {
	in  io.Reader
	out io.Writer
	r   *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, r: bufio.NewReader(in)}
}

// ask returns value when already set, otherwise reads a line
func (p *prompter) ask(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *prompter) askSecret(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.ask(label, "")
	}
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	secret, err := term.ReadPassword(int(f.Fd()))
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(secret), nil
}
