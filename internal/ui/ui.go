// Package ui is the boundary between the transfer engines and the person
// at the terminal. Engines talk to a Handler; the CLI picks the
// implementation (interactive terminal, non-interactive auto-abort, or a
// recorder in tests).
package ui

import (
	"github.com/dustin/go-humanize"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// Handler is the output capability engines depend on.
type Handler interface {
	Inform(msg string)
	Warn(msg string)
	Fail(kind clierr.Kind, details string)
	Confirm(prompt string) bool
	Progress(name string, total int64) Progress
}

// Progress tracks one transfer. Add is safe for concurrent use.
type Progress interface {
	Add(n int64)
	Done()
	Abort()
}

// Size formats a byte count for display.
func Size(n int64) string {
	if n < 0 {
		n = 0
	}

	return humanize.IBytes(uint64(n))
}

type noopProgress struct{}

func (noopProgress) Add(int64) {}
func (noopProgress) Done()     {}
func (noopProgress) Abort()    {}

// assumeYes answers yes to every confirmation.
type assumeYes struct {
	Handler
}

// AssumeYes wraps h so Confirm always returns true (the -y flag).
func AssumeYes(h Handler) Handler {
	return assumeYes{Handler: h}
}

func (assumeYes) Confirm(string) bool { return true }
