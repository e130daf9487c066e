// Package header accumulates raw response header lines into ordered,
// lowercase key/value entries.
//
// A [Collector] is fed one raw line at a time, in the order the lines
// were received. A line without a colon that is not blank is treated as
// the status line of a new response and discards everything collected so
// far, so after a chain of redirects only the final response's headers
// remain.
package header

import (
	"net/http"
	"slices"
	"strings"
	"sync"
)

// Entry is a single received header.
type Entry struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// Collector is the per-request header accumulator.
// The zero value is ready to use.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Line consumes one raw header line.
func (c *Collector) Line(raw string) {
	raw = strings.TrimRight(raw, "\r\n")

	// Reason phrases may contain a colon.
	if strings.HasPrefix(raw, "HTTP/") {
		c.Reset()
		return
	}

	key, val, ok := strings.Cut(raw, ":")
	if !ok {
		if strings.TrimSpace(raw) == "" {
			return
		}

		c.Reset()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, Entry{
		Key: strings.ToLower(strings.TrimSpace(key)),
		Val: strings.TrimSpace(val),
	})
}

// Reset discards every collected entry.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
}

// Entries returns a copy of the collected entries in receipt order.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.entries)
}

// Feed replays a single response hop as raw lines: the status line,
// one line per header value and the terminating blank line.
// net/http does not keep wire order, so keys are emitted sorted.
func Feed(line func(string), status string, h http.Header) {
	line(status + "\r\n")

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		for _, v := range h[k] {
			line(k + ": " + v + "\r\n")
		}
	}

	line("\r\n")
}
