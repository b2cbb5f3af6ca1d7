package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// readPassword is swapped in tests.
var readPassword = term.ReadPassword

// Terminal writes messages to stderr and prompts on stdin. Progress bars
// are drawn only when stderr is a terminal.
type Terminal struct {
	out         io.Writer
	in          *bufio.Reader
	interactive bool
	quiet       bool

	mu sync.Mutex
}

// NewTerminal returns a Terminal on the process's standard streams.
func NewTerminal(quiet bool) *Terminal {
	return &Terminal{
		out:         os.Stderr,
		in:          bufio.NewReader(os.Stdin),
		interactive: IsInteractive(),
		quiet:       quiet,
	}
}

// IsInteractive reports whether both stdin and stderr are terminals.
func IsInteractive() bool {
	return isTerminal(os.Stdin.Fd()) && isTerminal(os.Stderr.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Interactive reports whether prompts can be answered.
func (t *Terminal) Interactive() bool {
	return t.interactive
}

func (t *Terminal) Inform(msg string) {
	if t.quiet {
		return
	}

	t.println(msg)
}

func (t *Terminal) Warn(msg string) {
	t.println("Warning: " + msg)
}

func (t *Terminal) Fail(kind clierr.Kind, details string) {
	t.println(fmt.Sprintf("Error (%s): %s", kind, details))
}

// Confirm asks a yes/no question; anything but y/yes is no.
func (t *Terminal) Confirm(prompt string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "%s [y/N]: ", prompt)

	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(t.out)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// ReadSecret prompts for a value without echoing it.
func (t *Terminal) ReadSecret(prompt string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprint(t.out, prompt)

	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(t.out)

	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	return strings.TrimSpace(string(b)), nil
}

// ReadLine reads one line from stdin, for piped secrets.
func (t *Terminal) ReadLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading stdin: %w", err)
	}

	return strings.TrimSpace(line), nil
}

func (t *Terminal) Progress(name string, total int64) Progress {
	if t.quiet || !t.interactive {
		return noopProgress{}
	}

	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(progressThrottle),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(t.out) }),
	)

	return &barProgress{bar: bar}
}

func (t *Terminal) println(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintln(t.out, msg)
}

type barProgress struct {
	bar  *progressbar.ProgressBar
	once sync.Once
}

func (p *barProgress) Add(n int64) {
	_ = p.bar.Add64(n)
}

func (p *barProgress) Done() {
	p.once.Do(func() { _ = p.bar.Finish() })
}

func (p *barProgress) Abort() {
	p.once.Do(func() { _ = p.bar.Exit() })
}
