package client_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/adamwoolhether/fetch/client"
	"github.com/adamwoolhether/fetch/client/reqopt"
	"github.com/adamwoolhether/fetch/config"
)

// slowServer answers /n after (5-n)*10ms so later targets finish first.
func slowServer(t *testing.T, inFlight, maxInFlight *atomic.Int32) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inFlight != nil {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := maxInFlight.Load()
				if cur <= old || maxInFlight.CompareAndSwap(old, cur) {
					break
				}
			}
		}

		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/"))
		time.Sleep(time.Duration(5-n) * 10 * time.Millisecond)

		w.Header().Set("X-Index", strconv.Itoa(n))
		w.Write([]byte(r.URL.Path))
	}))
	t.Cleanup(ts.Close)

	return ts
}

func TestClient_MultiGet_IndexAligned(t *testing.T) {
	ts := slowServer(t, nil, nil)

	var urls []string
	for i := range 5 {
		urls = append(urls, ts.URL+"/"+strconv.Itoa(i))
	}

	results, err := mustBuild(t).MultiGet(t.Context(), client.URLs(urls...))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(results) != len(urls) {
		t.Fatalf("exp %d results, got %d", len(urls), len(results))
	}

	var got, exp []string
	for i, r := range results {
		got = append(got, r.Text())
		exp = append(exp, "/"+strconv.Itoa(i))

		if v, _ := r.Header("x-index"); v != strconv.Itoa(i) {
			t.Errorf("result %d carries headers of request %s", i, v)
		}
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("results not aligned with targets (-want +got):\n%s", diff)
	}
}

func TestClient_MultiGet_FailureIsolated(t *testing.T) {
	ok := echoServer(t)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	results, err := mustBuild(t).MultiGet(t.Context(), client.URLs(ok.URL, deadURL, ok.URL))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	for _, i := range []int{0, 2} {
		if results[i].Code() != http.StatusOK || results[i].ErrorMessage() != "" {
			t.Errorf("result %d: exp 200 without error, got %d %q", i, results[i].Code(), results[i].ErrorMessage())
		}
	}
	if results[1].Code() != 0 || results[1].ErrorMessage() == "" {
		t.Errorf("result 1: exp transport failure, got %d %q", results[1].Code(), results[1].ErrorMessage())
	}

	errs := multierr.Errors(results.Err())
	if len(errs) != 1 {
		t.Fatalf("exp 1 batch error, got %d", len(errs))
	}

	var berr *client.BatchError
	if !errors.As(errs[0], &berr) || berr.Index != 1 {
		t.Errorf("exp batch error for index 1, got %v", errs[0])
	}

	var terr *client.TransportError
	if !errors.As(errs[0], &terr) || terr.URL != deadURL {
		t.Errorf("exp transport error for %s, got %v", deadURL, errs[0])
	}

	sum := results.Summary()
	if sum.Total != 3 || sum.Failed != 1 || sum.Codes[http.StatusOK] != 2 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestClient_MultiGet_Empty(t *testing.T) {
	c := mustBuild(t)

	for _, targets := range [][]client.Target{nil, {}} {
		results, err := c.MultiGet(t.Context(), targets)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if results == nil || len(results) != 0 {
			t.Errorf("exp empty non-nil results, got %#v", results)
		}
	}
}

func TestClient_MultiRequest_ConfigErrorAbortsBatch(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ts.Close()

	targets := []client.Target{
		{URL: ts.URL},
		{URL: ts.URL},
		{URL: ts.URL, Options: []reqopt.Option{reqopt.WithType("xml")}},
	}

	results, err := mustBuild(t).MultiRequest(t.Context(), http.MethodPost, targets, map[string]any{"a": 1})
	if !errors.Is(err, client.ErrUnknownBodyType) {
		t.Fatalf("exp ErrUnknownBodyType, got %v", err)
	}
	if !strings.Contains(err.Error(), "target 2") {
		t.Errorf("exp error to name target 2, got %v", err)
	}
	if results != nil {
		t.Errorf("exp no results, got %d", len(results))
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("exp no requests sent, got %d", n)
	}
}

func TestClient_MultiRequest_Precedence(t *testing.T) {
	ts := echoServer(t)
	c := mustBuild(t, client.WithDefaults(
		reqopt.WithHeader("X-Layer", "client"),
		reqopt.WithType(reqopt.JSON),
	))

	targets := []client.Target{
		{URL: ts.URL + "/a"},
		{URL: ts.URL + "/b", Options: []reqopt.Option{reqopt.WithHeader("x-layer", "target")}},
		{URL: ts.URL + "/c", Options: []reqopt.Option{
			reqopt.WithHeader("X-Layer", "target"),
			reqopt.WithTransportOverride("timeout", 5),
			reqopt.WithType(reqopt.Form),
		}},
	}

	results, err := c.MultiRequest(t.Context(), http.MethodPut, targets, map[string]any{"k": "v"},
		reqopt.WithHeader("X-Layer", "call"),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	exp := []echo{
		{Method: "PUT", Path: "/a", ContentType: "application/json", Body: `{"k":"v"}`},
		{Method: "PUT", Path: "/b", ContentType: "application/json", Body: `{"k":"v"}`},
		{Method: "PUT", Path: "/c", ContentType: "application/x-www-form-urlencoded", Body: "k=v"},
	}
	expLayer := []string{"call", "target", "target"}

	for i, r := range results {
		got := decodeEcho(t, r)
		if got.Headers["x-layer"] != expLayer[i] {
			t.Errorf("target %d: exp x-layer %q, got %q", i, expLayer[i], got.Headers["x-layer"])
		}

		got.Headers = nil
		if diff := cmp.Diff(exp[i], got); diff != "" {
			t.Errorf("target %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestClient_MultiGet_Concurrency(t *testing.T) {
	testCases := []struct {
		name        string
		concurrency int
		check       func(t *testing.T, maxInFlight int32)
	}{
		{
			name:        "bounded",
			concurrency: 2,
			check: func(t *testing.T, maxInFlight int32) {
				if maxInFlight > 2 {
					t.Errorf("exp at most 2 in flight, got %d", maxInFlight)
				}
			},
		},
		{
			name: "unbounded",
			check: func(t *testing.T, maxInFlight int32) {
				if maxInFlight < 2 {
					t.Errorf("exp requests to overlap, max in flight %d", maxInFlight)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var inFlight, maxInFlight atomic.Int32
			ts := slowServer(t, &inFlight, &maxInFlight)

			var targets []client.Target
			for range 6 {
				targets = append(targets, client.Target{URL: ts.URL + "/0"})
			}

			c := mustBuild(t, client.WithConcurrency(tc.concurrency))
			results, err := c.MultiGet(t.Context(), targets)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if err := results.Err(); err != nil {
				t.Fatalf("unexpected transport errors: %v", err)
			}

			tc.check(t, maxInFlight.Load())
		})
	}
}

func TestClient_MultiManifest(t *testing.T) {
	ts := echoServer(t)

	m, err := config.ParseManifest([]byte(`
method: POST
body:
  name: widget
options:
  bodyType: json
  headers:
    X-Batch: "1"
requests:
  - url: ` + ts.URL + `/one
  - url: ` + ts.URL + `/two
    options:
      headers:
        X-Batch: "2"
`))
	if err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}

	results, err := mustBuild(t).MultiManifest(t.Context(), m)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("exp 2 results, got %d", len(results))
	}
	for i, expBatch := range []string{"1", "2"} {
		got := decodeEcho(t, results[i])
		if got.Method != http.MethodPost || got.Body != `{"name":"widget"}` {
			t.Errorf("request %d: unexpected %s %q", i, got.Method, got.Body)
		}
		if got.Headers["x-batch"] != expBatch {
			t.Errorf("request %d: exp x-batch %s, got %q", i, expBatch, got.Headers["x-batch"])
		}
	}
}

func TestClient_MultiRequest_SharedReaderBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, fh, err := r.FormFile("f")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()

		b, _ := io.ReadAll(f)
		w.Write([]byte(fh.Filename + "=" + string(b)))
	}))
	defer ts.Close()

	body := map[string]any{"f": strings.NewReader("hello")}

	results, err := mustBuild(t).MultiRequest(t.Context(), http.MethodPost, client.URLs(ts.URL, ts.URL, ts.URL), body,
		reqopt.WithType(reqopt.Multipart),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	for i, r := range results {
		if r.Code() != http.StatusOK || r.Text() != "f=hello" {
			t.Errorf("target %d: exp every target to upload the full reader, got %d %q %q", i, r.Code(), r.Text(), r.ErrorMessage())
		}
	}
}

func TestClient_MultiGet_Throttled(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ts.Close()

	c := mustBuild(t, client.WithThrottle(20, 2))

	start := time.Now()
	results, err := c.MultiGet(t.Context(), client.URLs(ts.URL, ts.URL, ts.URL, ts.URL, ts.URL))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	took := time.Since(start)

	if err := results.Err(); err != nil {
		t.Fatalf("unexpected transport errors: %v", err)
	}
	if n := hits.Load(); n != 5 {
		t.Errorf("exp 5 requests, got %d", n)
	}

	// Two burst tokens, then three tokens at 50ms each on the shared budget.
	if took < 140*time.Millisecond {
		t.Errorf("exp the batch to be paced by the throttle, took %v", took)
	}
}
