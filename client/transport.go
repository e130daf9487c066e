package client

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptrace"
	"net/textproto"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adamwoolhether/fetch/client/header"
	"github.com/adamwoolhether/fetch/client/reqopt"
)

// maxTransports bounds the number of cached round trippers. When it is
// reached the cache is dropped and idle connections of the cloned
// transports are closed; requests in flight keep their transport.
const maxTransports = 64

type transportKey struct {
	insecure  bool
	overrides string
}

// transportFor returns the round tripper for cfg. Requests with the same
// TLS toggle and transport overrides share one connection pool.
func (c *Client) transportFor(cfg *reqopt.Config) (http.RoundTripper, error) {
	key := transportKey{insecure: cfg.IgnoreTLSErrors, overrides: cfg.Transport.Key()}

	c.tmu.Lock()
	defer c.tmu.Unlock()

	if rt, ok := c.transports[key]; ok {
		return rt, nil
	}

	if len(c.transports) >= maxTransports {
		c.logger.Debug("transport cache full, evicting", "size", len(c.transports))
		for _, t := range c.clones {
			t.CloseIdleConnections()
		}
		c.clones = nil
		clear(c.transports)
	}

	t := c.base
	if key != (transportKey{overrides: reqopt.TransportOverrides{}.Key()}) {
		t = c.base.Clone()
		if err := applyOverrides(t, cfg); err != nil {
			return nil, err
		}
		c.clones = append(c.clones, t)
	}

	var rt http.RoundTripper = t
	if c.userAgent != "" {
		rt = userAgent{value: c.userAgent, base: rt}
	}
	if c.limiter != nil {
		rt = c.limiter.Wrap(rt)
	}

	c.transports[key] = rt

	return rt, nil
}

// CloseIdleConnections closes idle connections on the base transport and
// on every clone made for overridden requests.
func (c *Client) CloseIdleConnections() {
	c.tmu.Lock()
	defer c.tmu.Unlock()

	c.base.CloseIdleConnections()
	for _, t := range c.clones {
		t.CloseIdleConnections()
	}
}

func applyOverrides(t *http.Transport, cfg *reqopt.Config) error {
	o := cfg.Transport

	if cfg.IgnoreTLSErrors || o.TLSServerName != "" {
		tlsCfg := &tls.Config{}
		if t.TLSClientConfig != nil {
			tlsCfg = t.TLSClientConfig.Clone()
		}
		if cfg.IgnoreTLSErrors {
			tlsCfg.InsecureSkipVerify = true
		}
		if o.TLSServerName != "" {
			tlsCfg.ServerName = o.TLSServerName
		}
		t.TLSClientConfig = tlsCfg
	}

	if o.Proxy != "" {
		u, err := url.Parse(o.Proxy)
		if err != nil {
			return &reqopt.InvalidOptionError{Option: "transportOverrides.proxy", Value: o.Proxy, Err: err}
		}
		t.Proxy = http.ProxyURL(u)
	}

	if o.DisableKeepAlives {
		t.DisableKeepAlives = true
	}
	if o.DisableCompression {
		t.DisableCompression = true
	}
	if o.ForceAttemptHTTP2 {
		t.ForceAttemptHTTP2 = true
	}
	if o.MaxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = o.MaxIdleConnsPerHost
	}
	if o.MaxConnsPerHost > 0 {
		t.MaxConnsPerHost = o.MaxConnsPerHost
	}
	if o.IdleConnTimeout > 0 {
		t.IdleConnTimeout = o.IdleConnTimeout
	}
	if o.TLSHandshakeTimeout > 0 {
		t.TLSHandshakeTimeout = o.TLSHandshakeTimeout
	}
	if o.ResponseHeaderTimeout > 0 {
		t.ResponseHeaderTimeout = o.ResponseHeaderTimeout
	}
	if o.ExpectContinueTimeout > 0 {
		t.ExpectContinueTimeout = o.ExpectContinueTimeout
	}
	if o.MaxResponseHeaderBytes > 0 {
		t.MaxResponseHeaderBytes = o.MaxResponseHeaderBytes
	}

	return nil
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return ua.base.RoundTrip(r)
	}

	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

// hopFeeder replays every response it sees, one per redirect hop, as raw
// header lines.
type hopFeeder struct {
	next http.RoundTripper
	line func(string)
}

func (f hopFeeder) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := f.next.RoundTrip(r)
	if err != nil {
		return nil, err
	}

	header.Feed(f.line, resp.Proto+" "+resp.Status, resp.Header)

	return resp, nil
}

// timings records connection phases as offsets from start. httptrace
// hooks may fire on dialer goroutines.
type timings struct {
	mu        sync.Mutex
	start     time.Time
	dns       time.Duration
	connect   time.Duration
	tls       time.Duration
	firstByte time.Duration
}

func (t *timings) mark(d *time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	*d = time.Since(t.start)
}

func (t *timings) trace(line func(string)) *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSDone: func(httptrace.DNSDoneInfo) {
			t.mark(&t.dns)
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				t.mark(&t.connect)
			}
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				t.mark(&t.tls)
			}
		},
		GotFirstResponseByte: func() {
			t.mark(&t.firstByte)
		},
		Got1xxResponse: func(code int, h textproto.MIMEHeader) error {
			header.Feed(line, fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code)), http.Header(h))
			return nil
		},
	}
}

func (t *timings) snapshot() (dns, connect, handshake, firstByte time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.dns, t.connect, t.tls, t.firstByte
}

// requestBody returns the payload for cfg and, for multipart bodies, the
// content type carrying the boundary.
func requestBody(cfg *reqopt.Config) (io.Reader, string, error) {
	if cfg.Fields != nil {
		return multipartBody(cfg.Fields)
	}

	if cfg.Body == nil {
		return nil, "", nil
	}

	return bytes.NewReader(cfg.Body), "", nil
}

func multipartBody(fields map[string]any) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if err := writePart(w, k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("multipart field %q: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), w.FormDataContentType(), nil
}

func writePart(w *multipart.Writer, name string, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return w.WriteField(name, t)
	case []byte:
		return w.WriteField(name, string(t))
	case []string:
		for _, s := range t {
			if err := w.WriteField(name, s); err != nil {
				return err
			}
		}
		return nil
	case reqopt.File, *reqopt.File, io.Reader:
		f, ok := reqopt.AsFile(name, t)
		if !ok {
			return nil
		}
		return writeFile(w, name, f)
	default:
		return w.WriteField(name, fmt.Sprint(t))
	}
}

func writeFile(w *multipart.Writer, name string, f reqopt.File) error {
	content, err := f.Open()
	if err != nil {
		return err
	}
	defer content.Close()

	filename := f.Name
	if filename == "" && f.Path != "" {
		filename = filepath.Base(f.Path)
	}
	if filename == "" {
		filename = name
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(name), escapeQuotes(filename)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copying upload: %w", err)
	}

	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
