package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext cancels on the first SIGINT or SIGTERM so a running
// transfer can stop its workers and keep the resume manifest. A second
// signal exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		var sig os.Signal

		select {
		case sig = <-sigCh:
		case <-ctx.Done():
			return
		}

		logger.Warn("interrupted, stopping transfers", slog.String("signal", sig.String()))
		cancel()

		select {
		case sig = <-sigCh:
			if parent.Err() != nil {
				return
			}

			logger.Error("second interrupt, exiting now", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-parent.Done():
		}
	}()

	return ctx
}
