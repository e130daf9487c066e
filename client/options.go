package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/fetch/client/reqopt"
	"github.com/adamwoolhether/fetch/client/throttle"
	"github.com/adamwoolhether/fetch/config"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	defaults        []reqopt.Options
	transport       *http.Transport
	userAgent       string
	throttle        *config.Throttle
	concurrency     int
	logger          *slog.Logger
	tracerProvider  trace.TracerProvider
	requestIDHeader string
}

// WithDefaults layers request options over the built-in defaults for
// every request made by the [Client]. It may be given more than once;
// later calls win.
func WithDefaults(opts ...reqopt.Option) Option {
	return func(c *options) error {
		layer, err := reqopt.Build(opts...)
		if err != nil {
			return err
		}
		c.defaults = append(c.defaults, layer)
		return nil
	}
}

// WithTransport sets the base transport. Requests that need different
// TLS or transport settings run on clones of it.
func WithTransport(t *http.Transport) Option {
	return func(c *options) error {
		if t == nil {
			return errors.New("transport must not be nil")
		}
		c.transport = t
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests
// per second and burst capacity. The budget is shared by all requests
// of the [Client], batches included.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &config.Throttle{RPS: rps, Burst: burst}
		return nil
	}
}

// WithConcurrency bounds how many requests of one batch are in flight at
// once. Zero, the default, means no bound.
func WithConcurrency(n int) Option {
	return func(c *options) error {
		if n < 0 {
			return errors.New("concurrency must not be negative")
		}
		c.concurrency = n
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithTracerProvider sets the provider used for request and batch spans.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *options) error {
		if tp == nil {
			return errors.New("tracer provider must not be nil")
		}
		c.tracerProvider = tp
		return nil
	}
}

// WithRequestIDHeader sends each request's generated ID in the named header.
func WithRequestIDHeader(name string) Option {
	return func(c *options) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("request id header must not be empty")
		}
		c.requestIDHeader = name
		return nil
	}
}

// WithSettings applies loaded [config.Settings]. Zero-valued settings
// are ignored, so later options can still override them.
func WithSettings(s config.Settings) Option {
	return func(c *options) error {
		c.defaults = append(c.defaults, s.Defaults)

		if s.UserAgent != "" {
			c.userAgent = s.UserAgent
		}

		if s.Concurrency != 0 {
			if err := WithConcurrency(s.Concurrency)(c); err != nil {
				return err
			}
		}

		if s.Throttle.RPS != 0 || s.Throttle.Burst != 0 {
			if err := WithThrottle(s.Throttle.RPS, s.Throttle.Burst)(c); err != nil {
				return err
			}
		}

		return nil
	}
}
