package transfer

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"
)

// burstMultiplier sizes the token bucket relative to the per-second rate.
const burstMultiplier = 2

// BandwidthLimiter caps aggregate throughput across all chunk uploads and
// downloads. A nil limiter is unlimited.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter returns nil when bytesPerSec is zero.
func NewBandwidthLimiter(bytesPerSec int64, logger *slog.Logger) *BandwidthLimiter {
	if bytesPerSec <= 0 {
		return nil
	}

	burst := int(bytesPerSec) * burstMultiplier

	logger.Info("bandwidth limit enabled",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// Wait blocks until n bytes may be sent.
func (bl *BandwidthLimiter) Wait(ctx context.Context, n int) error {
	if bl == nil {
		return nil
	}

	return waitN(ctx, bl.limiter, n)
}

// WrapWriter returns a rate-limited writer, or w itself when unlimited.
func (bl *BandwidthLimiter) WrapWriter(ctx context.Context, w io.Writer) io.Writer {
	if bl == nil {
		return w
	}

	return &limitedWriter{w: w, bl: bl, ctx: ctx}
}

type limitedWriter struct {
	w   io.Writer
	bl  *BandwidthLimiter
	ctx context.Context
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		if waitErr := w.bl.Wait(w.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

// waitN splits requests larger than the burst, which WaitN would reject.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()

	for n > 0 {
		take := min(n, burst)

		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
