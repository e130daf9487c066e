// Package result holds the immutable outcome of a completed request.
package result

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/adamwoolhether/fetch/client/header"
)

// Info carries the transport metadata of a completed request.
type Info struct {
	Method        string
	RequestID     string
	StatusCode    int
	Proto         string
	URL           string // effective URL after any followed redirects
	RedirectURL   string // Location of a 3xx response that was not followed
	RedirectCount int
	ContentLength int64

	TotalTime         time.Duration
	NameLookupTime    time.Duration
	ConnectTime       time.Duration
	TLSHandshakeTime  time.Duration
	StartTransferTime time.Duration
}

// Result is the outcome of a single request. It is never modified after
// New returns; every accessor hands out copies.
type Result struct {
	body    []byte
	headers []header.Entry
	info    Info
	errMsg  string
	logger  *slog.Logger
}

// New builds a Result. errMsg is empty when no transport error occurred.
func New(body []byte, headers []header.Entry, info Info, errMsg string, logger *slog.Logger) *Result {
	if logger == nil {
		logger = slog.Default()
	}

	return &Result{
		body:    slices.Clone(body),
		headers: slices.Clone(headers),
		info:    info,
		errMsg:  errMsg,
		logger:  logger,
	}
}

// Text returns the raw response body.
func (r *Result) Text() string {
	return string(r.body)
}

// Bytes returns a copy of the raw response body.
func (r *Result) Bytes() []byte {
	return slices.Clone(r.body)
}

// JSON decodes the body into dst.
func (r *Result) JSON(dst any) error {
	if err := json.Unmarshal(r.body, dst); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}

	return nil
}

// Get queries the JSON body with a gjson path such as "users.0.name".
// Use Exists on the returned value to tell a missing path from a null one.
func (r *Result) Get(path string) gjson.Result {
	return gjson.GetBytes(r.body, path)
}

// Code returns the HTTP status code, or 0 if no response was received.
func (r *Result) Code() int {
	return r.info.StatusCode
}

// ErrorMessage returns the transport error message, or "" on success.
// HTTP error statuses are not transport errors.
func (r *Result) ErrorMessage() string {
	return r.errMsg
}

// Err returns a *TransportError when the request failed at the transport
// level and nil otherwise.
func (r *Result) Err() error {
	if r.errMsg == "" {
		return nil
	}

	return &TransportError{URL: r.info.URL, Message: r.errMsg}
}

// Headers returns every collected header in receipt order.
func (r *Result) Headers() []header.Entry {
	return slices.Clone(r.headers)
}

// Header returns the value of the first header matching name,
// case-insensitively.
//
// Note the asymmetry with request header merging, where the last value
// wins: a response carrying the same header twice reports the first one
// here. Scan Headers when the last occurrence matters.
func (r *Result) Header(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, h := range r.headers {
		if h.Key == name {
			return h.Val, true
		}
	}

	return "", false
}

// URL returns the effective URL.
func (r *Result) URL() string {
	return r.info.URL
}

// RedirectURL returns the redirect target of an unfollowed 3xx response.
func (r *Result) RedirectURL() string {
	return r.info.RedirectURL
}

// Time returns the total elapsed time of the request.
func (r *Result) Time() time.Duration {
	return r.info.TotalTime
}

// Info returns the full transport metadata.
func (r *Result) Info() Info {
	return r.info
}
