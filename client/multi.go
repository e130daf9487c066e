package client

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/fetch/client/batch"
	"github.com/adamwoolhether/fetch/client/reqopt"
	"github.com/adamwoolhether/fetch/client/result"
	"github.com/adamwoolhether/fetch/config"
)

// Target is one request of a batch. Its Options take precedence over
// the options given to the batch call.
type Target struct {
	URL     string
	Options []reqopt.Option
}

// URLs builds targets without per-request options.
func URLs(urls ...string) []Target {
	targets := make([]Target, len(urls))
	for i, u := range urls {
		targets[i] = Target{URL: u}
	}
	return targets
}

// MultiGet issues a GET to every target concurrently.
func (c *Client) MultiGet(ctx context.Context, targets []Target, opts ...reqopt.Option) (result.Results, error) {
	return c.MultiRequest(ctx, http.MethodGet, targets, nil, opts...)
}

// MultiRequest issues method to every target concurrently, sending the
// same body to each, and blocks until all of them finish. Results are in
// target order. Every target is resolved before anything is sent, so a
// configuration error aborts the whole batch with no I/O. Transport
// failures are per-result and never affect other targets.
func (c *Client) MultiRequest(ctx context.Context, method string, targets []Target, body any, opts ...reqopt.Option) (result.Results, error) {
	call, err := reqopt.Build(opts...)
	if err != nil {
		return nil, err
	}

	defaults := c.Defaults()
	layers := make([]reqopt.Options, len(targets))
	for i, t := range targets {
		layer, err := reqopt.Build(t.Options...)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		layers[i] = layer
	}

	return c.run(ctx, method, body, targets, defaults, call, layers)
}

// MultiManifest runs a batch described by a manifest.
func (c *Client) MultiManifest(ctx context.Context, m *config.Manifest) (result.Results, error) {
	method := m.Method
	if method == "" {
		method = http.MethodGet
	}

	targets := make([]Target, len(m.Requests))
	layers := make([]reqopt.Options, len(m.Requests))
	for i, r := range m.Requests {
		targets[i] = Target{URL: r.URL}
		layers[i] = r.Options
	}

	return c.run(ctx, method, m.Body, targets, c.Defaults(), m.Options, layers)
}

func (c *Client) run(ctx context.Context, method string, body any, targets []Target, defaults, call reqopt.Options, layers []reqopt.Options) (result.Results, error) {
	if len(targets) == 0 {
		return result.Results{}, nil
	}

	// Every target encodes the same body; readers must not be drained by
	// the first one.
	body, err := reqopt.Buffer(body)
	if err != nil {
		return nil, err
	}

	prep := make([]prepared, len(targets))
	for i := range targets {
		p, err := c.prepare(method, body, defaults, call, layers[i])
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		prep[i] = p
	}

	ctx, span := c.tracer.Start(ctx, "fetch.batch",
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.Int("fetch.batch.size", len(targets)),
			attribute.Int("fetch.batch.concurrency", c.concurrency),
		),
	)
	defer span.End()

	results := batch.Run(ctx, len(targets), c.concurrency, func(ctx context.Context, i int) *result.Result {
		return c.execute(ctx, targets[i].URL, prep[i])
	})

	c.logger.Debug("batch complete", "method", method, "size", len(targets))

	return results, nil
}
