package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Limiter is a token bucket shared by every transport it wraps, so a
// single budget covers all outbound requests of a client regardless of
// which connection pool they use.
type Limiter struct {
	limiter *rate.Limiter
	rps     int
	burst   int
	log     *slog.Logger
}

// New returns a Limiter allowing rps requests per second with the given
// burst. A nil logger disables the exhaustion logs.
func New(rps, burst int, log *slog.Logger) (*Limiter, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
		log:     log,
	}, nil
}

// Wait blocks until a token is available or ctx ends. target is only
// used for logging.
func (l *Limiter) Wait(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	if l.limiter.Allow() {
		return nil
	}

	var waited time.Duration
	if l.log != nil {
		l.log.Info("throttle tokens exhausted", "rate", l.rps, "burst", l.burst, "target", target)

		defer func() {
			l.log.Info("throttle wait complete", "waited", waited.String(), "rate", l.rps, "burst", l.burst)
		}()
	}

	start := time.Now()

	err := l.limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return nil
}

// Wrap returns an http.RoundTripper that takes a token from l before
// every round trip, redirect hops included.
func (l *Limiter) Wrap(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	return &roundTripper{limiter: l, next: next}
}

type roundTripper struct {
	limiter *Limiter
	next    http.RoundTripper
}

func (t *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(r.Context(), r.URL.Host); err != nil {
		return nil, err
	}

	return t.next.RoundTrip(r)
}
