package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/fetch/client/header"
	"github.com/adamwoolhether/fetch/client/reqopt"
	"github.com/adamwoolhether/fetch/client/result"
	"github.com/adamwoolhether/fetch/client/throttle"
)

const tracerName = "github.com/adamwoolhether/fetch/client"

// Client issues single requests and concurrent batches. Its default
// options can be changed at any time with Set; each call snapshots them
// on entry.
type Client struct {
	mu       sync.RWMutex
	defaults reqopt.Options

	tmu        sync.Mutex
	base       *http.Transport
	clones     []*http.Transport
	transports map[transportKey]http.RoundTripper

	userAgent       string
	limiter         *throttle.Limiter
	concurrency     int
	logger          *slog.Logger
	tracer          trace.Tracer
	requestIDHeader string
}

func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	client := &Client{
		defaults:        reqopt.Options{}.Merge(opts.defaults...),
		transports:      make(map[transportKey]http.RoundTripper),
		userAgent:       opts.userAgent,
		concurrency:     opts.concurrency,
		logger:          slog.Default(),
		requestIDHeader: opts.requestIDHeader,
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	switch {
	case opts.transport != nil:
		client.base = opts.transport
	default:
		client.base = http.DefaultTransport.(*http.Transport).Clone()
	}

	tp := opts.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	client.tracer = tp.Tracer(tracerName)

	if opts.throttle != nil {
		lim, err := throttle.New(opts.throttle.RPS, opts.throttle.Burst, client.logger)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		client.limiter = lim
	}

	return client, nil
}

// Set replaces a single default option by its untyped key, for example
// "timeout", "headers" or "ignoreTlsErrors". A nil value restores the
// built-in default. Requests already in flight are unaffected.
func (c *Client) Set(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.defaults.Set(key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	return nil
}

// Defaults returns a copy of the client-level option layer.
func (c *Client) Defaults() reqopt.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.defaults.Merge()
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...reqopt.Option) (*result.Result, error) {
	return c.Request(ctx, http.MethodGet, rawURL, nil, opts...)
}

// Post issues a POST request with body encoded according to the
// resolved body type.
func (c *Client) Post(ctx context.Context, rawURL string, body any, opts ...reqopt.Option) (*result.Result, error) {
	return c.Request(ctx, http.MethodPost, rawURL, body, opts...)
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, rawURL string, body any, opts ...reqopt.Option) (*result.Result, error) {
	return c.Request(ctx, http.MethodPut, rawURL, body, opts...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, rawURL string, body any, opts ...reqopt.Option) (*result.Result, error) {
	return c.Request(ctx, http.MethodDelete, rawURL, body, opts...)
}

// Request resolves opts over the client defaults and issues a single
// request. HTTP error statuses and transport failures are both reported
// through the returned Result; the error is non-nil only for invalid
// configuration, in which case nothing was sent.
func (c *Client) Request(ctx context.Context, method, rawURL string, body any, opts ...reqopt.Option) (*result.Result, error) {
	call, err := reqopt.Build(opts...)
	if err != nil {
		return nil, err
	}

	p, err := c.prepare(method, body, c.Defaults(), call)
	if err != nil {
		return nil, err
	}

	return c.execute(ctx, rawURL, p), nil
}

type prepared struct {
	cfg *reqopt.Config
	rt  http.RoundTripper
}

func (c *Client) prepare(method string, body any, layers ...reqopt.Options) (prepared, error) {
	cfg, err := reqopt.Resolve(method, body, layers...)
	if err != nil {
		return prepared{}, err
	}

	rt, err := c.transportFor(cfg)
	if err != nil {
		return prepared{}, err
	}

	return prepared{cfg: cfg, rt: rt}, nil
}

// execute runs one prepared request to completion. It never fails: any
// error becomes part of the Result.
func (c *Client) execute(ctx context.Context, rawURL string, p prepared) *result.Result {
	cfg := p.cfg
	id := uuid.NewString()

	ctx, span := c.tracer.Start(ctx, "fetch.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", cfg.Method),
			attribute.String("url.full", rawURL),
			attribute.String("fetch.request_id", id),
		),
	)
	defer span.End()

	col := header.NewCollector()
	tm := &timings{start: time.Now()}
	info := result.Info{
		Method:    cfg.Method,
		RequestID: id,
		URL:       rawURL,
	}

	finish := func(body []byte, err error) *result.Result {
		info.TotalTime = time.Since(tm.start)
		info.NameLookupTime, info.ConnectTime, info.TLSHandshakeTime, info.StartTransferTime = tm.snapshot()

		if info.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", info.StatusCode))
		}

		var msg string
		if err != nil {
			msg = transportMessage(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, msg)
			c.logger.Warn("request failed", "method", cfg.Method, "url", info.URL, "request_id", id, "error", msg)
		} else {
			c.logger.Debug("request complete", "method", cfg.Method, "url", info.URL, "status", info.StatusCode, "took", info.TotalTime.String(), "request_id", id)
		}

		return result.New(body, col.Entries(), info, msg, c.logger)
	}

	payload, contentType, err := requestBody(cfg)
	if err != nil {
		return finish(nil, err)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, rawURL, payload)
	if err != nil {
		return finish(nil, err)
	}

	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if host, ok := cfg.Headers["host"]; ok {
		req.Host = host
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user, pass, ok := cfg.BasicAuth(); ok {
		req.SetBasicAuth(user, pass)
	}
	if c.requestIDHeader != "" {
		req.Header.Set(c.requestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	req = req.WithContext(httptrace.WithClientTrace(ctx, tm.trace(col.Line)))

	var redirects int
	hc := &http.Client{
		Transport: hopFeeder{next: p.rt, line: col.Line},
		Timeout:   cfg.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if !cfg.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) > cfg.MaxRedirects {
				return fmt.Errorf("maximum (%d) redirects followed", cfg.MaxRedirects)
			}
			redirects = len(via)
			return nil
		},
	}

	resp, err := hc.Do(req)
	info.RedirectCount = redirects
	if resp != nil {
		// With a redirect policy error, resp is the last hop, body closed.
		info.StatusCode = resp.StatusCode
		info.Proto = resp.Proto
		info.URL = resp.Request.URL.String()
	}
	if err != nil {
		return finish(nil, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if !cfg.FollowRedirects && isRedirect(resp.StatusCode) {
		if loc, err := resp.Location(); err == nil {
			info.RedirectURL = loc.String()
		}
	}

	body, err := io.ReadAll(resp.Body)
	info.ContentLength = int64(len(body))
	if err != nil {
		return finish(body, fmt.Errorf("reading body: %w", err))
	}

	return finish(body, nil)
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}

	return false
}

// transportMessage drops the method and URL that *url.Error prepends;
// the Result already carries both.
func transportMessage(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err.Error()
	}

	return err.Error()
}
