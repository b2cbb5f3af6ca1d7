package ui

import (
	"sync"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// Recorder captures everything sent to it. Confirmations are answered from
// Answers in order; when they run out, Default is used.
type Recorder struct {
	mu sync.Mutex

	Infos    []string
	Warnings []string
	Failures []string
	Prompts  []string
	Answers  []bool
	Default  bool

	Bars map[string]*RecordedProgress
}

// NewRecorder returns a Recorder whose confirmations default to answer.
func NewRecorder(answer bool) *Recorder {
	return &Recorder{Default: answer, Bars: map[string]*RecordedProgress{}}
}

func (r *Recorder) Inform(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Infos = append(r.Infos, msg)
}

func (r *Recorder) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Warnings = append(r.Warnings, msg)
}

func (r *Recorder) Fail(kind clierr.Kind, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Failures = append(r.Failures, kind.String()+": "+details)
}

func (r *Recorder) Confirm(prompt string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Prompts = append(r.Prompts, prompt)

	if len(r.Answers) == 0 {
		return r.Default
	}

	a := r.Answers[0]
	r.Answers = r.Answers[1:]

	return a
}

func (r *Recorder) Progress(name string, total int64) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &RecordedProgress{Total: total}
	r.Bars[name] = p

	return p
}

// Snapshot returns copies of the recorded warnings and prompts.
func (r *Recorder) Snapshot() (warnings, prompts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.Warnings...), append([]string(nil), r.Prompts...)
}

// Bar returns the recorded progress for name, or nil.
func (r *Recorder) Bar(name string) *RecordedProgress {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Bars[name]
}

// RecordedProgress counts bytes reported to one progress bar.
type RecordedProgress struct {
	mu      sync.Mutex
	Total   int64
	current int64
	done    bool
	aborted bool
}

func (p *RecordedProgress) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += n
}

func (p *RecordedProgress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = true
}

func (p *RecordedProgress) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.aborted = true
}

// State returns the bytes added and whether the bar finished or aborted.
func (p *RecordedProgress) State() (current int64, done, aborted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.current, p.done, p.aborted
}
