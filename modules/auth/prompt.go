package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

// Prompter is the user-facing half of an interactive login.
type Prompter interface {
	// Open shows the authorization URL to the user.
	Open(url string)
	// Ask prints question and returns the user's trimmed answer.
	Ask(question string) (string, error)
}

// ErrEmptyAnswer is returned when the user enters nothing.
var ErrEmptyAnswer = errors.New("no input provided")

// TerminalPrompter prints to Out, reads lines from In and optionally launches
// the system browser.
type TerminalPrompter struct {
	Out         io.Writer
	Browser     bool
	openBrowser func(string) error
	log         zerolog.Logger

	mu sync.Mutex
	in *bufio.Reader
}

// NewTerminalPrompter builds a prompter over in/out. When launchBrowser is set
// the URL is also opened with the platform's default browser.
func NewTerminalPrompter(in io.Reader, out io.Writer, launchBrowser bool, logger zerolog.Logger) *TerminalPrompter {
	return &TerminalPrompter{
		Out:         out,
		Browser:     launchBrowser,
		openBrowser: browser.OpenURL,
		log:         logger,
		in:          bufio.NewReader(in),
	}
}

func (p *TerminalPrompter) Open(url string) {
	fmt.Fprintf(p.Out, "Authorize this application by visiting:\n\n  %s\n\n", url)
	if !p.Browser {
		return
	}
	if err := p.openBrowser(url); err != nil {
		p.log.Warn().Err(err).Msg("could not open browser, open the URL manually")
	}
}

func (p *TerminalPrompter) Ask(question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.Out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}
