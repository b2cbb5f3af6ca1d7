package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

const progressThrottle = 100 * time.Millisecond

// AutoAbort is the handler for non-interactive runs: every confirmation is
// declined, so commands that need one stop instead of blocking.
type AutoAbort struct {
	out   io.Writer
	quiet bool
	mu    sync.Mutex
}

// NewAutoAbort writes messages to out.
func NewAutoAbort(out io.Writer, quiet bool) *AutoAbort {
	return &AutoAbort{out: out, quiet: quiet}
}

func (a *AutoAbort) Inform(msg string) {
	if !a.quiet {
		a.println(msg)
	}
}

func (a *AutoAbort) Warn(msg string) {
	a.println("Warning: " + msg)
}

func (a *AutoAbort) Fail(kind clierr.Kind, details string) {
	a.println(fmt.Sprintf("Error (%s): %s", kind, details))
}

func (a *AutoAbort) Confirm(prompt string) bool {
	a.println(prompt + " [non-interactive: no]")

	return false
}

func (a *AutoAbort) Progress(string, int64) Progress {
	return noopProgress{}
}

func (a *AutoAbort) println(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintln(a.out, msg)
}
