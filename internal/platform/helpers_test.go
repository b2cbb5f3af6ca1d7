package platform

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTokens is a TokenSource returning "tok-<n>" where n counts refreshes.
type fakeTokens struct {
	refreshes  atomic.Int32
	refreshErr error
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	return "tok-" + string(rune('0'+f.refreshes.Load())), nil
}

func (f *fakeTokens) Refresh(context.Context) (string, error) {
	if f.refreshErr != nil {
		return "", f.refreshErr
	}

	n := f.refreshes.Add(1)

	return "tok-" + string(rune('0'+n)), nil
}

func (f *fakeTokens) SessionID() string { return "session-1" }

// sleepRecorder replaces the client's sleep and records each wait.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waits = append(s.waits, d)

	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.waits...)
}

func newTestClient(t *testing.T, base string) (*Client, *fakeTokens, *sleepRecorder) {
	t.Helper()

	tokens := &fakeTokens{}
	rec := &sleepRecorder{}

	c := NewClient(SingleHost(base), http.DefaultClient, tokens, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.sleepFunc = rec.sleep

	return c, tokens, rec
}
