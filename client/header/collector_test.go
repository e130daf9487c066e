package header

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Line(t *testing.T) {
	c := NewCollector()

	c.Line("Content-Type:  application/json \r\n")
	c.Line("X-Trace: a:b:c\r\n")
	c.Line("set-cookie: one\r\n")
	c.Line("Set-Cookie: two\r\n")

	want := []Entry{
		{Key: "content-type", Val: "application/json"},
		{Key: "x-trace", Val: "a:b:c"},
		{Key: "set-cookie", Val: "one"},
		{Key: "set-cookie", Val: "two"},
	}
	assert.Equal(t, want, c.Entries())
}

func TestCollector_BlankLineKeepsEntries(t *testing.T) {
	c := NewCollector()

	c.Line("X-One: 1\r\n")
	c.Line("\r\n")
	c.Line("   \t")
	c.Line("")

	assert.Equal(t, []Entry{{Key: "x-one", Val: "1"}}, c.Entries())
}

func TestCollector_StatusLineResets(t *testing.T) {
	c := NewCollector()

	// First hop: a redirect.
	c.Line("HTTP/1.1 302 Found\r\n")
	c.Line("Location: /next\r\n")
	c.Line("X-Hop: first\r\n")
	c.Line("\r\n")

	// Second hop: the final response.
	c.Line("HTTP/1.1 200 OK\r\n")
	c.Line("X-Hop: second\r\n")
	c.Line("\r\n")

	assert.Equal(t, []Entry{{Key: "x-hop", Val: "second"}}, c.Entries())
}

func TestCollector_StatusLineWithColonResets(t *testing.T) {
	c := NewCollector()

	c.Line("X-Hop: first\r\n")
	c.Line("HTTP/1.1 302 Moved: see /x\r\n")
	c.Line("Location: /x\r\n")

	assert.Equal(t, []Entry{{Key: "location", Val: "/x"}}, c.Entries())
}

func TestCollector_InterimResponseDiscarded(t *testing.T) {
	c := NewCollector()

	c.Line("HTTP/1.1 100 Continue\r\n")
	c.Line("X-Interim: yes\r\n")
	c.Line("\r\n")
	c.Line("HTTP/1.1 201 Created\r\n")
	c.Line("Location: /items/1\r\n")

	assert.Equal(t, []Entry{{Key: "location", Val: "/items/1"}}, c.Entries())
}

func TestCollector_EntriesIsACopy(t *testing.T) {
	c := NewCollector()
	c.Line("A: 1")

	got := c.Entries()
	got[0].Val = "mutated"

	assert.Equal(t, "1", c.Entries()[0].Val)
}

func TestCollector_ConcurrentLines(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Line("X-N: 1")
		}()
	}
	wg.Wait()

	assert.Len(t, c.Entries(), 50)
}

func TestFeed(t *testing.T) {
	var lines []string
	h := http.Header{
		"X-B":          {"2"},
		"Content-Type": {"text/plain"},
		"X-A":          {"1", "1b"},
	}

	Feed(func(s string) { lines = append(lines, s) }, "HTTP/1.1 200 OK", h)

	want := []string{
		"HTTP/1.1 200 OK\r\n",
		"Content-Type: text/plain\r\n",
		"X-A: 1\r\n",
		"X-A: 1b\r\n",
		"X-B: 2\r\n",
		"\r\n",
	}
	require.Equal(t, want, lines)

	c := NewCollector()
	c.Line("Stale: yes")
	for _, l := range lines {
		c.Line(l)
	}

	assert.Equal(t, []Entry{
		{Key: "content-type", Val: "text/plain"},
		{Key: "x-a", Val: "1"},
		{Key: "x-a", Val: "1b"},
		{Key: "x-b", Val: "2"},
	}, c.Entries())
}
