package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/ui"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := shutdownContext(context.Background(), logger)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		exitOnError(err)
	}
}

// exitOnError prints err through the error funnel and exits 1.
func exitOnError(err error) {
	reportError(ui.NewAutoAbort(os.Stderr, false), err)
	os.Exit(1)
}

// reportError prints one failure. Classified errors carry their code and
// kind; anything else is reported as unknown.
func reportError(out ui.Handler, err error) {
	out.Fail(clierr.KindOf(err), describeError(err))
}

func describeError(err error) string {
	if errors.Is(err, context.Canceled) {
		return "interrupted: " + err.Error()
	}

	if code := clierr.CodeOf(err); code != "" {
		return fmt.Sprintf("[%s] %v", code, err)
	}

	return err.Error()
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := jsonEncoder(w)

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
